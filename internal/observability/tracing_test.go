package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewSampler(t *testing.T) {
	tests := map[float64]string{
		1:    "root:AlwaysOnSampler",
		2:    "root:AlwaysOnSampler",
		0:    "root:AlwaysOffSampler",
		-1:   "root:AlwaysOffSampler",
		0.25: "root:TraceIDRatioBased{0.25}",
	}
	for ratio, want := range tests {
		assert.Contains(t, newSampler(ratio).Description(), want, ratio)
	}
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	_, err := InitTracing(TracingConfig{Enabled: true, Exporter: "zipkin"})
	assert.ErrorContains(t, err, `unknown tracing exporter "zipkin"`)
}

func TestEndSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := Tracer
	Tracer = tp.Tracer(tracerName)
	t.Cleanup(func() { Tracer = prev })

	_, ok := StartSpan(context.Background(), "broadcast.publish", attribute.String("broadcast.topic", "posts"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "broadcast.publish")
	EndSpan(failed, errors.New("relay down"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("broadcast.topic", "posts"))
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "relay down", spans[1].Status().Description)
	assert.Len(t, spans[1].Events(), 1)
}
