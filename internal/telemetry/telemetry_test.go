package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		opts            []Option
		expectNoOpMeter bool
		expectHandler   bool
		expectError     bool
		errorContains   string
	}{
		{
			name:            "returns no-op telemetry when no config provided",
			expectNoOpMeter: true,
		},
		{
			name:            "returns no-op telemetry when disabled",
			opts:            []Option{WithTelemetryConfig(&Config{Enabled: false})},
			expectNoOpMeter: true,
		},
		{
			name: "returns no-op providers when tracing and metrics disabled",
			opts: []Option{WithTelemetryConfig(&Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false},
				Metrics: &MetricsConfig{Enabled: false},
			})},
			expectNoOpMeter: true,
		},
		{
			name: "prometheus reader exposes a scrape handler",
			opts: []Option{WithTelemetryConfig(&Config{
				Enabled: true,
				Metrics: &MetricsConfig{Prometheus: true},
			})},
			expectHandler: true,
		},
		{
			name: "returns error for invalid sampling",
			opts: []Option{WithTelemetryConfig(&Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			})},
			expectError:   true,
			errorContains: "invalid telemetry configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			tel, err := New(ctx, tt.opts...)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tel)

			_, ok := tel.TracerProvider().(tracenoop.TracerProvider)
			assert.True(t, ok, "expected no-op tracer provider")

			if tt.expectNoOpMeter {
				_, ok := tel.MeterProvider().(noop.MeterProvider)
				assert.True(t, ok, "expected no-op meter provider")
			} else {
				_, ok := tel.MeterProvider().(*sdkmetric.MeterProvider)
				assert.True(t, ok, "expected SDK meter provider")
			}

			if tt.expectHandler {
				assert.NotNil(t, tel.MetricsHandler())
			} else {
				assert.Nil(t, tel.MetricsHandler())
			}

			require.NoError(t, tel.Shutdown(ctx))
		})
	}
}

func TestTelemetry_PrometheusScrape(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx, WithTelemetryConfig(&Config{
		Enabled: true,
		Metrics: &MetricsConfig{Prometheus: true},
	}))
	require.NoError(t, err)
	defer func() { _ = tel.Shutdown(ctx) }()

	metrics, err := NewSyncMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordRecords(ctx, "default", "create", 3)

	srv := httptest.NewServer(tel.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "listsync_records_total")
	assert.Contains(t, string(body), `action="create"`)
}

func TestTelemetry_Accessors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx)
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test-tracer"))
	assert.NotNil(t, tel.Meter("test-meter"))

	require.NoError(t, tel.Shutdown(ctx))
	require.NoError(t, tel.Shutdown(ctx))
}
