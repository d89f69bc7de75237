package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	UseTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() {
		_, _ = Init(context.Background(), Config{})
	})
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "saslgate", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())

	ctx, span := StartSpan(ctx, "noop")
	defer span.End()
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestStartStepSpan(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartStepSpan(context.Background(), "PLAIN", "server", "evaluate-response", ExchangeID("ex-1"))
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	AddEvent(ctx, "callback", Principal("jdoe"))
	SetAttributes(ctx, State("COMPLETE"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanStep, spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "PLAIN", attrs[AttrMechanism])
	assert.Equal(t, "server", attrs[AttrSide])
	assert.Equal(t, "evaluate-response", attrs[AttrStep])
	assert.Equal(t, "ex-1", attrs[AttrExchangeID])
	assert.Equal(t, "COMPLETE", attrs[AttrState])
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "callback", spans[0].Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartDirectorySpan(context.Background(), SpanDirectoryOpen, "ldaps://localhost:11391")
	RecordError(ctx, nil)
	RecordError(ctx, errors.New("connection refused"))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "connection refused", spans[0].Status().Description)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestProfiling(t *testing.T) {
	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())

	_, err = InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"gpu"}})
	assert.ErrorContains(t, err, "unknown profile type")

	assert.True(t, ValidProfileType("CPU"))
	assert.False(t, ValidProfileType("gpu"))
}
