package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/detector"
	"github.com/snow-ghost/assistant/pkg/limiter"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// Wrapper adds status detection, timeline events, panic recovery and
// per-tool circuit breaking around tool executors.
type Wrapper struct {
	detector detector.Strategy
	breakers *limiter.CircuitBreakerManager
	obs      *observability.Manager
	logger   *logging.Logger
}

// WrapperOption configures a Wrapper
type WrapperOption func(*Wrapper)

// WithBreakers sets the per-tool circuit breakers
func WithBreakers(b *limiter.CircuitBreakerManager) WrapperOption {
	return func(w *Wrapper) {
		w.breakers = b
	}
}

// WithObservability sets logging, metrics and tracing
func WithObservability(m *observability.Manager) WrapperOption {
	return func(w *Wrapper) {
		w.obs = m
	}
}

// NewWrapper creates a wrapper judging tool output with det
func NewWrapper(det detector.Strategy, opts ...WrapperOption) *Wrapper {
	w := &Wrapper{detector: det}
	for _, opt := range opts {
		opt(w)
	}

	w.obs = observability.OrNop(w.obs)
	w.logger = w.obs.Component("tools")
	if w.breakers == nil {
		m := w.obs.GetMetrics()
		w.breakers = limiter.NewCircuitBreakerManager(
			limiter.WithStateChange(func(name string, from, to gobreaker.State) {
				w.logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
				m.RecordCircuitState(name, to.String())
			}),
		)
	}
	return w
}

// Breakers exposes the per-tool circuit breakers
func (w *Wrapper) Breakers() *limiter.CircuitBreakerManager {
	return w.breakers
}

// ErrorAnswer is the generic answer left in place of a tool that raised.
func ErrorAnswer(tool core.Tool) string {
	return fmt.Sprintf("Sorry, the %s tool could not complete this request.", tool)
}

// Wrap returns fn with identical signature that never returns an error:
// the outcome is reported through ToolStatus and FailureReason instead.
func (w *Wrapper) Wrap(tool core.Tool, fn core.ToolFunc) core.ToolFunc {
	return func(ctx context.Context, s core.State) (core.State, error) {
		ctx, span := w.obs.GetTracer().StartToolSpan(ctx, tool.String())
		defer span.End()

		in := handoff(s).WithEvent(core.TimelineEvent{
			Kind:   core.EventToolStart,
			Tool:   tool,
			Status: core.StatusPending,
		})

		start := time.Now()
		out, err := w.invoke(ctx, tool, fn, in)
		duration := time.Since(start)

		switch {
		case err != nil:
			out = in.Clone()
			out.ToolStatus = core.StatusError
			out.FailureReason = err.Error()
			out.FinalAnswer = ErrorAnswer(tool)
			out.FinalAnswers = nil
		case tool == core.AlwaysSucceedTool:
			out.ToolStatus = core.StatusSuccess
			out.FailureReason = ""
		default:
			outcome := w.detector.Classify(out.Output())
			if outcome.Failed {
				out.ToolStatus = core.StatusFailed
				out.FailureReason = outcome.Reason
			} else {
				out.ToolStatus = core.StatusSuccess
				out.FailureReason = ""
			}
		}

		out = settle(in, out).WithEvent(core.TimelineEvent{
			Kind:   core.EventToolEnd,
			Tool:   tool,
			Status: out.ToolStatus,
			Reason: out.FailureReason,
		})

		tracing.RecordSpanDuration(span, duration)
		if out.ToolStatus == core.StatusSuccess {
			tracing.RecordSpanSuccess(span)
		} else {
			tracing.RecordSpanFailure(span, out.FailureReason)
		}
		w.logger.LogToolRun(ctx, tool.String(), string(out.ToolStatus), out.FailureReason, duration)
		w.obs.GetMetrics().RecordToolRun(tool.String(), string(out.ToolStatus), duration)

		return out, nil
	}
}

// handoff prepares the state a tool receives. The previous answer is cleared
// so the tool is judged only on what it writes. The last successful output
// stays readable through ToolResult.
func handoff(s core.State) core.State {
	n := s.Clone()
	n.FinalAnswer = ""
	n.FinalAnswers = nil
	return n
}

// settle fills ToolResult after a run: a success without its own payload
// passes its answer on, a failure keeps the previous payload.
func settle(in, out core.State) core.State {
	switch {
	case out.ToolStatus != core.StatusSuccess:
		out.ToolResult = in.ToolResult
	case out.ToolResult == in.ToolResult && out.Output() != "":
		out.ToolResult = out.Output()
	}
	return out
}

// invoke runs fn inside the tool's breaker. Only raised errors and panics
// count against the breaker; detected failures do not.
func (w *Wrapper) invoke(ctx context.Context, tool core.Tool, fn core.ToolFunc, s core.State) (core.State, error) {
	result, err := w.breakers.Execute(ctx, tool.String(), func() (out interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tool %s panicked: %v", tool, r)
			}
		}()
		return fn(ctx, s)
	})
	if err != nil {
		return core.State{}, err
	}
	return result.(core.State), nil
}
