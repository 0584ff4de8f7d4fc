// Package orchestrator drives one request through routing, validation,
// tool execution, pipeline advancement and fallback recovery.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/fallback"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/tools"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// Classifier assigns a question type
type Classifier interface {
	Classify(ctx context.Context, question string, difficulty core.Difficulty) core.QuestionType
}

// ConfigSource provides the current fallback configuration
type ConfigSource interface {
	Config() *fallback.Config
}

// Router chooses the first tool or pipeline
type Router interface {
	Route(ctx context.Context, s core.State) core.State
}

// Validator re-checks routing choices
type Validator interface {
	Validate(ctx context.Context, s core.State) core.State
}

// Request is one question to answer
type Request struct {
	Question   string
	Difficulty core.Difficulty
	History    []core.Turn
	// Observer, when set, receives timeline events as they are appended.
	Observer core.Observer
}

// Termination outcomes reported in logs and metrics
const (
	OutcomeSuccess       = "success"
	OutcomeFinalFallback = "final_fallback"
	OutcomeGeneralError  = "general_error"
)

// Orchestrator is safe for concurrent use; every Run owns its state.
type Orchestrator struct {
	classifier Classifier
	config     ConfigSource
	router     Router
	validator  Validator
	tools      map[core.Tool]core.ToolFunc
	skip       SkipRules
	obs        *observability.Manager
	logger     *logging.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithValidator enables the validation stage when the configuration allows it
func WithValidator(v Validator) Option {
	return func(o *Orchestrator) {
		o.validator = v
	}
}

// WithSkipRules overrides the skip-rule thresholds
func WithSkipRules(r SkipRules) Option {
	return func(o *Orchestrator) {
		o.skip = r
	}
}

// WithObservability sets logging, metrics and tracing
func WithObservability(m *observability.Manager) Option {
	return func(o *Orchestrator) {
		o.obs = m
	}
}

// New creates an orchestrator. Every tool of the vocabulary must be
// registered; executors are wrapped once here.
func New(
	classifier Classifier,
	config ConfigSource,
	router Router,
	registry *tools.Registry,
	wrapper *tools.Wrapper,
	opts ...Option,
) (*Orchestrator, error) {
	if err := registry.Require(core.Tools()...); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o := &Orchestrator{
		classifier: classifier,
		config:     config,
		router:     router,
		tools:      make(map[core.Tool]core.ToolFunc),
		skip:       DefaultSkipRules(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.obs = observability.OrNop(o.obs)
	o.logger = o.obs.Component("orchestrator")

	for _, t := range core.Tools() {
		fn, err := registry.Get(t)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		o.tools[t] = wrapper.Wrap(t, fn)
	}

	return o, nil
}

// run is the per-request bookkeeping of one Run call
type run struct {
	state       core.State
	observer    core.Observer
	sent        int
	invocations int
}

func (r *run) flush() {
	if r.observer == nil {
		r.sent = len(r.state.Timeline)
		return
	}
	for _, e := range r.state.Timeline[r.sent:] {
		r.observer(e)
	}
	r.sent = len(r.state.Timeline)
}

func (r *run) enter(stage core.Stage) {
	r.state = r.state.WithStage(stage)
}

func (r *run) event(e core.TimelineEvent) {
	r.state = r.state.WithEvent(e)
	r.flush()
}

// Run answers one request. It always terminates with Stage done. Tool
// invocations are bounded by the pipeline length plus MaxRetries plus one.
func (o *Orchestrator) Run(ctx context.Context, req Request) core.State {
	ctx, requestID := observability.EnsureRequestID(ctx)
	logger := o.logger.WithRequestID(ctx, requestID)

	ctx, span := o.obs.GetTracer().StartRunSpan(ctx, requestID, string(req.Difficulty))
	defer span.End()
	if traceID := tracing.GetTraceID(ctx); traceID != "" {
		logger = logger.WithTraceID(ctx, traceID)
	}

	cfg := o.config.Config()

	s := core.NewState(req.Question, req.Difficulty)
	s.History = slices.Clone(req.History)
	s.MaxRetries = cfg.MaxRetries
	s.MaxValidation = cfg.ValidationRetries
	s.QuestionType = o.classifier.Classify(ctx, req.Question, s.Difficulty)
	s.FallbackChain = cfg.Chain(s.QuestionType)

	r := &run{state: s, observer: req.Observer}
	o.route(ctx, r, cfg)
	outcome := o.execute(ctx, r, cfg, logger)

	r.enter(core.StageDone)
	s = r.state

	tracing.AddSpanAttributes(span, map[string]interface{}{
		"question.type":       string(s.QuestionType),
		"run.outcome":         outcome,
		"run.invocations":     r.invocations,
		"run.retries":         s.RetryCount,
		"run.termination":     s.TerminationReason,
		"run.final_tool":      s.ToolChoice.String(),
		"run.fallback_chain":  toolNames(s.FallbackChain),
		"run.tools_attempted": toolNames(s.InvokedTools()),
	})
	if outcome == OutcomeGeneralError {
		tracing.RecordSpanFailure(span, s.FailureReason)
	} else {
		tracing.RecordSpanSuccess(span)
	}

	reason := outcome
	if s.TerminationReason != "" {
		reason = s.TerminationReason
	}
	logger.LogTermination(ctx, outcome, reason, r.invocations)
	o.obs.GetMetrics().RecordTermination(reason)

	return s
}

// route runs ROUTING and the optional VALIDATING stage until the choice is
// accepted. Validation retries bound the loop.
func (o *Orchestrator) route(ctx context.Context, r *run, cfg *fallback.Config) {
	for {
		r.enter(core.StageRouting)
		r.state = o.router.Route(ctx, r.state)
		r.flush()

		if !cfg.ValidationEnabled || o.validator == nil {
			return
		}

		r.enter(core.StageValidating)
		r.state = o.validator.Validate(ctx, r.state)
		r.flush()

		if !r.state.ValidationFailed {
			return
		}
	}
}

// execute runs EXECUTING and the transitions out of it until DONE
func (o *Orchestrator) execute(ctx context.Context, r *run, cfg *fallback.Config, logger *logging.Logger) string {
	current := r.state.ToolChoice

	for {
		o.invoke(ctx, r, current)

		if r.state.ToolStatus == core.StatusSuccess {
			next, done := o.advance(r, current)
			if done {
				return OutcomeSuccess
			}
			current = next
			continue
		}

		if current == core.AlwaysSucceedTool {
			// the terminal fallback is never retried
			return OutcomeGeneralError
		}

		if cfg.Enabled && r.state.RetryCount < r.state.MaxRetries {
			if candidate, ok := o.candidate(r.state, current); ok {
				o.fallbackTo(ctx, r, current, candidate, logger)
				current = candidate
				continue
			}
		}

		return o.finalFallback(ctx, r, current)
	}
}

func (o *Orchestrator) invoke(ctx context.Context, r *run, tool core.Tool) {
	r.enter(core.StageExecuting)
	r.state.ToolChoice = tool
	r.state.ToolStatus = core.StatusPending
	r.invocations++

	// wrapped tools report outcomes through the state, never as errors
	next, _ := o.tools[tool](ctx, r.state)
	r.state = next
	r.flush()
}

// advance applies skip rules after a success and moves the pipeline cursor
// past steps already answered in this run. done is true when nothing remains
// to run.
func (o *Orchestrator) advance(r *run, tool core.Tool) (core.Tool, bool) {
	s := r.state
	pipeline := s.ToolPipeline
	outcome := o.skip.apply(tool, s.Output(), pipeline, s.PipelineIndex)

	if outcome.rule != "" {
		detail := "skipped " + strings.Join(toolNames(outcome.skipped), ", ")
		if outcome.terminate {
			r.state.PipelineTerminated = true
			r.state.TerminationReason = outcome.rule
			detail = "terminated"
			if len(outcome.skipped) > 0 {
				detail += ", skipped " + strings.Join(toolNames(outcome.skipped), ", ")
			}
		}
		r.event(core.TimelineEvent{
			Kind:   core.EventPipelineSkip,
			Tool:   tool,
			Status: core.StatusSuccess,
			Reason: outcome.rule,
			Detail: detail,
		})
		o.obs.GetMetrics().RecordPipelineSkip(outcome.rule)
	}

	if !outcome.terminate {
		var answered []core.Tool
		outcome.next, answered = skipAnswered(pipeline, outcome.next, succeededTools(r.state))
		if len(answered) > 0 {
			r.event(core.TimelineEvent{
				Kind:   core.EventPipelineSkip,
				Tool:   tool,
				Status: core.StatusSuccess,
				Reason: RuleAlreadyAnswered,
				Detail: "skipped " + strings.Join(toolNames(answered), ", "),
			})
			o.obs.GetMetrics().RecordPipelineSkip(RuleAlreadyAnswered)
		}
	}

	if outcome.terminate || outcome.next >= len(pipeline) {
		return "", true
	}

	next := pipeline[outcome.next]
	r.enter(core.StagePipelineAdvance)
	r.state.PipelineIndex = outcome.next
	r.event(core.TimelineEvent{
		Kind:   core.EventPipelineProgress,
		Tool:   next,
		Status: core.StatusPending,
		Detail: fmt.Sprintf("step %d/%d", outcome.next+1, len(pipeline)),
	})
	return next, false
}

// candidate picks the first chain entry that is not the failed tool, has not
// failed before, did not already succeed in this run and is not the terminal
// fallback.
func (o *Orchestrator) candidate(s core.State, failed core.Tool) (core.Tool, bool) {
	succeeded := succeededTools(s)
	for _, t := range s.FallbackChain {
		if t == failed || t == core.AlwaysSucceedTool || s.HasFailed(t) || slices.Contains(succeeded, t) {
			continue
		}
		return t, true
	}
	return "", false
}

func (o *Orchestrator) fallbackTo(ctx context.Context, r *run, from, to core.Tool, logger *logging.Logger) {
	r.enter(core.StageFallbackRetry)
	reason := r.state.FailureReason
	status := r.state.ToolStatus
	if !r.state.HasFailed(from) {
		r.state.FailedTools = append(r.state.FailedTools, from)
	}
	r.state.RetryCount++

	kind := core.EventFallback
	if r.state.InPipeline() {
		kind = core.EventPipelineFallback
	}
	r.event(core.TimelineEvent{
		Kind:   kind,
		Tool:   to,
		Status: status,
		Reason: reason,
		Detail: "from " + from.String(),
	})

	logger.LogFallback(ctx, from.String(), to.String(), r.state.RetryCount, r.state.InPipeline())
	o.obs.GetMetrics().RecordFallback(from.String(), to.String())
}

func (o *Orchestrator) finalFallback(ctx context.Context, r *run, failed core.Tool) string {
	r.enter(core.StageFinalFallback)
	reason := r.state.FailureReason
	if !r.state.HasFailed(failed) {
		r.state.FailedTools = append(r.state.FailedTools, failed)
	}
	r.event(core.TimelineEvent{
		Kind:   core.EventFinalFallback,
		Tool:   core.AlwaysSucceedTool,
		Status: r.state.ToolStatus,
		Reason: reason,
		Detail: "from " + failed.String(),
	})
	o.obs.GetMetrics().RecordFinalFallback()

	o.invoke(ctx, r, core.AlwaysSucceedTool)
	if r.state.ToolStatus.Failed() {
		return OutcomeGeneralError
	}
	return OutcomeFinalFallback
}

// succeededTools lists tools whose last recorded run ended in success
func succeededTools(s core.State) []core.Tool {
	var out []core.Tool
	for _, e := range s.Events(core.EventToolEnd) {
		if e.Status == core.StatusSuccess && !slices.Contains(out, e.Tool) {
			out = append(out, e.Tool)
		}
	}
	return out
}

func toolNames(ts []core.Tool) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}
