package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "assistant"

// PrometheusMetrics holds all Prometheus metrics of the orchestration core.
// A nil *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	// Tool metrics
	ToolInvocationsTotal *prometheus.CounterVec
	ToolLatency          *prometheus.HistogramVec

	// Recovery metrics
	FallbacksTotal      *prometheus.CounterVec
	FinalFallbacksTotal prometheus.Counter
	PipelineSkipsTotal  *prometheus.CounterVec
	TerminationsTotal   *prometheus.CounterVec

	// Decision metrics
	ClassificationsTotal      *prometheus.CounterVec
	RouteDecisionsTotal       *prometheus.CounterVec
	ValidationRejectionsTotal prometheus.Counter

	// LLM metrics
	LLMTokensTotal *prometheus.CounterVec

	// Circuit breaker metrics
	CircuitStateChangesTotal *prometheus.CounterVec
}

// NewPrometheusMetrics registers collectors on the default registerer
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWith(prometheus.DefaultRegisterer)
}

// NewPrometheusMetricsWith registers collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func NewPrometheusMetricsWith(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		ToolInvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of tool invocations by final status",
			},
			[]string{"tool", "status"},
		),

		ToolLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_latency_seconds",
				Help:      "Tool invocation latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		FallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallbacks_total",
				Help:      "Total number of fallback substitutions",
			},
			[]string{"from", "to"},
		),

		FinalFallbacksTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "final_fallbacks_total",
				Help:      "Total number of runs that ended on the always-succeed tool",
			},
		),

		PipelineSkipsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_skips_total",
				Help:      "Total number of pipeline skip rules applied",
			},
			[]string{"rule"},
		),

		TerminationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "terminations_total",
				Help:      "Total number of finished runs by termination reason",
			},
			[]string{"reason"},
		),

		ClassificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Total number of question classifications",
			},
			[]string{"question_type", "cached"},
		),

		RouteDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "route_decisions_total",
				Help:      "Total number of routing decisions by strategy",
			},
			[]string{"strategy"},
		),

		ValidationRejectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_rejections_total",
				Help:      "Total number of routing choices rejected by the validator",
			},
		),

		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of LLM tokens",
			},
			[]string{"model", "direction"},
		),

		CircuitStateChangesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_state_changes_total",
				Help:      "Total number of circuit breaker transitions",
			},
			[]string{"name", "to"},
		),
	}
}

// RecordToolRun records a tool invocation and its latency
func (m *PrometheusMetrics) RecordToolRun(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	m.ToolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordFallback records a fallback substitution
func (m *PrometheusMetrics) RecordFallback(from, to string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordFinalFallback records a run that reached the final fallback
func (m *PrometheusMetrics) RecordFinalFallback() {
	if m == nil {
		return
	}
	m.FinalFallbacksTotal.Inc()
}

// RecordPipelineSkip records an applied skip rule
func (m *PrometheusMetrics) RecordPipelineSkip(rule string) {
	if m == nil {
		return
	}
	m.PipelineSkipsTotal.WithLabelValues(rule).Inc()
}

// RecordTermination records how a run finished
func (m *PrometheusMetrics) RecordTermination(reason string) {
	if m == nil {
		return
	}
	m.TerminationsTotal.WithLabelValues(reason).Inc()
}

// RecordClassification records a classification result
func (m *PrometheusMetrics) RecordClassification(questionType string, cached bool) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(questionType, strconv.FormatBool(cached)).Inc()
}

// RecordRoute records a routing decision
func (m *PrometheusMetrics) RecordRoute(strategy string) {
	if m == nil {
		return
	}
	m.RouteDecisionsTotal.WithLabelValues(strategy).Inc()
}

// RecordValidationRejection records a rejected routing choice
func (m *PrometheusMetrics) RecordValidationRejection() {
	if m == nil {
		return
	}
	m.ValidationRejectionsTotal.Inc()
}

// RecordTokens records token metrics
func (m *PrometheusMetrics) RecordTokens(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordCircuitState records a circuit breaker transition
func (m *PrometheusMetrics) RecordCircuitState(name, to string) {
	if m == nil {
		return
	}
	m.CircuitStateChangesTotal.WithLabelValues(name, to).Inc()
}
