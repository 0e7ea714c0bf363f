package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// SyncNameKey identifies the sync target on every exported span and metric
const SyncNameKey = attribute.Key("listsync.sync.name")

// newResource describes the process exporting telemetry. syncName is omitted when empty.
func newResource(ctx context.Context, serviceName, serviceVersion, syncName string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	}
	if syncName != "" {
		attrs = append(attrs, SyncNameKey.String(syncName))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
