package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	require.False(t, p.Enabled())

	ctx, span := p.Tracer().Start(context.Background(), SpanBatch)
	require.NotNil(t, ctx)
	require.False(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterFlushesOnShutdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces", "render.jsonl")

	p, err := NewProvider(Config{Enabled: true, Exporter: "file", FilePath: path})
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), SpanJob)
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, p.Shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"render.job"`)
}

func TestNewProvider_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"file without path", Config{Enabled: true, Exporter: "file"}, "file_path required"},
		{"unknown exporter", Config{Enabled: true, Exporter: "zipkin"}, "unsupported exporter type: zipkin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.cfg)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewProvider_NoneExporterStillCreatesSpans(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Exporter: "none", SampleRate: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer().Start(context.Background(), SpanBatch)
	require.True(t, span.SpanContext().IsValid())
	span.End()
}
