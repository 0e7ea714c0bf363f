package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/listsync/listsync/sync"

	// SyncTracerName is the name used for the sync tracer
	SyncTracerName = "github.com/listsync/listsync/sync"
)

// SyncMetrics holds the OpenTelemetry instruments for reconciliation runs
type SyncMetrics struct {
	runDuration       metric.Float64Histogram
	recordsTotal      metric.Int64Counter
	writeBackFailures metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	runDuration, err := meter.Float64Histogram(
		"listsync_run_duration_seconds",
		metric.WithDescription("Duration of reconciliation runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	recordsTotal, err := meter.Int64Counter(
		"listsync_records_total",
		metric.WithDescription("Records classified per reconciliation action"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	writeBackFailures, err := meter.Int64Counter(
		"listsync_writeback_failures_total",
		metric.WithDescription("Records whose shadow fields could not be written back"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runDuration:       runDuration,
		recordsTotal:      recordsTotal,
		writeBackFailures: writeBackFailures,
	}, nil
}

// RecordRunDuration records the duration of a reconciliation run
func (m *SyncMetrics) RecordRunDuration(ctx context.Context, syncName string, duration time.Duration, success bool) {
	if m == nil || m.runDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sync", syncName),
		attribute.Bool("success", success),
	}

	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRecords adds count records classified under action
func (m *SyncMetrics) RecordRecords(ctx context.Context, syncName, action string, count int64) {
	if m == nil || m.recordsTotal == nil || count == 0 {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("sync", syncName),
		attribute.String("action", action),
	}

	m.recordsTotal.Add(ctx, count, metric.WithAttributes(attrs...))
}

// RecordWriteBackFailures adds count failed write-backs
func (m *SyncMetrics) RecordWriteBackFailures(ctx context.Context, syncName string, count int64) {
	if m == nil || m.writeBackFailures == nil || count == 0 {
		return
	}

	m.writeBackFailures.Add(ctx, count, metric.WithAttributes(attribute.String("sync", syncName)))
}
