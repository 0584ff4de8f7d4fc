package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/snow-ghost/assistant"

// Tracer wraps OpenTelemetry tracer. A nil *Tracer starts no-op spans.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	JaegerEndpoint string
	Environment    string
}

// NewTracer creates a new OpenTelemetry tracer exporting to Jaeger
func NewTracer(config Config) (*Tracer, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		tracer:   tp.Tracer(instrumentationName),
		provider: tp,
	}, nil
}

// NewTracerFromProvider wraps an existing provider, e.g. one backed by tracetest.SpanRecorder
func NewTracerFromProvider(tp trace.TracerProvider) *Tracer {
	t := &Tracer{tracer: tp.Tracer(instrumentationName)}
	if sdk, ok := tp.(*sdktrace.TracerProvider); ok {
		t.provider = sdk
	}
	return t
}

// StartSpan starts a new span
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartRunSpan starts the span covering one orchestration run
func (t *Tracer) StartRunSpan(ctx context.Context, requestID, difficulty string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "orchestrator.Run", trace.WithAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.difficulty", difficulty),
	))
}

// StartToolSpan starts a span for one wrapped tool invocation
func (t *Tracer) StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "tool."+tool, trace.WithAttributes(
		attribute.String("tool.name", tool),
	))
}

// StartClassifySpan starts a span for question classification
func (t *Tracer) StartClassifySpan(ctx context.Context, difficulty string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "classifier.Classify", trace.WithAttributes(
		attribute.String("request.difficulty", difficulty),
	))
}

// StartRouteSpan starts a span for a routing decision
func (t *Tracer) StartRouteSpan(ctx context.Context, attempt int) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "router.Route", trace.WithAttributes(
		attribute.Int("route.attempt", attempt),
	))
}

// StartLLMSpan starts a span for a model call
func (t *Tracer) StartLLMSpan(ctx context.Context, caller, model, provider string) (context.Context, trace.Span) {
	return t.StartSpan(ctx, "llm.request", trace.WithAttributes(
		attribute.String("llm.caller", caller),
		attribute.String("llm.model", model),
		attribute.String("llm.provider", provider),
	))
}

// AddSpanAttributes adds attributes to a span
func AddSpanAttributes(span trace.Span, attrs map[string]interface{}) {
	for key, value := range attrs {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		case []string:
			span.SetAttributes(attribute.StringSlice(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanFailure marks a span failed without an error value
func RecordSpanFailure(span trace.Span, reason string) {
	span.SetStatus(codes.Error, reason)
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordSpanDuration records duration in a span
func RecordSpanDuration(span trace.Span, duration time.Duration) {
	span.SetAttributes(attribute.Float64("duration_ms", float64(duration.Nanoseconds())/1e6))
}

// RecordSpanTokens records token usage in a span
func RecordSpanTokens(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int("tokens.input", inputTokens),
		attribute.Int("tokens.output", outputTokens),
		attribute.Int("tokens.total", inputTokens+outputTokens),
	)
}

// Shutdown flushes and stops the provider owned by this tracer
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
