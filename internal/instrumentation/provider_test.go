package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.False(t, provider.ServesPrometheus())
	assert.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.Tracer("test"))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_PrometheusExporter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()

	assert.True(t, provider.Enabled())
	assert.True(t, provider.ServesPrometheus())
	provider.Metrics().RecordGmailOperation(ctx, OperationSearch, StatusSuccess, time.Millisecond)
}

func TestNewProvider_StdoutExporters(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:       "test-service",
		Enabled:           true,
		MetricsExporter:   ExporterStdout,
		TracingExporter:   ExporterStdout,
		TraceSamplingRate: 1,
	})
	require.NoError(t, err)

	assert.False(t, provider.ServesPrometheus())
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"metrics exporter", Config{Enabled: true, MetricsExporter: "invalid"}},
		{"tracing exporter", Config{Enabled: true, TracingExporter: "invalid"}},
		{"otlp without endpoint", Config{Enabled: true, TracingExporter: ExporterOTLP}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			assert.Error(t, err)
		})
	}
}
