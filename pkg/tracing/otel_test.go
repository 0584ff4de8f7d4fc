package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewTracerFromProvider(tp), recorder
}

func TestToolSpanNamesAndStatus(t *testing.T) {
	tracer, recorder := newRecordingTracer()

	ctx, run := tracer.StartRunSpan(context.Background(), "req-1", "easy")
	require.NotEmpty(t, GetTraceID(ctx))

	_, tool := tracer.StartToolSpan(ctx, "web_search")
	RecordSpanError(tool, errors.New("upstream down"))
	tool.End()

	RecordSpanSuccess(run)
	run.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "tool.web_search", spans[0].Name())
	require.Equal(t, codes.Error, spans[0].Status().Code)
	require.Equal(t, "orchestrator.Run", spans[1].Name())
	require.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())

	require.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNilTracerStartsNoopSpans(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.StartRouteSpan(context.Background(), 1)
	span.End()
	require.Empty(t, GetTraceID(ctx))
	require.NoError(t, tracer.Shutdown(context.Background()))
}
