// Package otel provides OpenTelemetry instrumentation utilities for listsync.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for business context used across the application.
// Using shared keys ensures consistent attribute naming in traces.
const (
	AttrSyncName          = attribute.Key("sync.name")
	AttrRunID             = attribute.Key("sync.run_id")
	AttrErrorKind         = attribute.Key("sync.error_kind")
	AttrCandidates        = attribute.Key("sync.candidates")
	AttrQueries           = attribute.Key("sync.queries")
	AttrCreates           = attribute.Key("sync.creates")
	AttrOperations        = attribute.Key("sync.operations")
	AttrCreated           = attribute.Key("sync.created")
	AttrUpdated           = attribute.Key("sync.updated")
	AttrWritten           = attribute.Key("sync.written")
	AttrWriteBackFailures = attribute.Key("sync.writeback_failures")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns a no-op span.
// This provides graceful degradation when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records an error on a span and sets the span status to error.
// It safely handles nil spans and nil errors.
// The status description stays generic so contact addresses carried in error
// messages only reach the exception event.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err == nil || span == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "operation failed")
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}
