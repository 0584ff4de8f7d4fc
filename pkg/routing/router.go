package routing

import (
	"context"
	"strings"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/patterns"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// Router decides which tool, or tool pipeline, handles a request.
// It never executes tools.
type Router struct {
	set     *patterns.Set
	pattern ToolSelector
	model   ToolSelector
	obs     *observability.Manager
	logger  *logging.Logger
}

// Option configures a Router
type Option func(*Router)

// WithModels sets the routing models per difficulty
func WithModels(m llm.ModelSet) Option {
	return func(r *Router) {
		if ms, ok := r.model.(*ModelStrategy); ok {
			ms.models = m
		}
	}
}

// WithModelSelector replaces the model strategy
func WithModelSelector(s ToolSelector) Option {
	return func(r *Router) {
		r.model = s
	}
}

// WithObservability sets logging, metrics and tracing
func WithObservability(m *observability.Manager) Option {
	return func(r *Router) {
		r.obs = m
	}
}

// NewRouter creates a router. A nil set disables pattern routing.
func NewRouter(set *patterns.Set, completer core.Completer, opts ...Option) *Router {
	r := &Router{
		set:     set,
		pattern: NewPatternStrategy(set),
		model:   NewModelStrategy(completer, llm.DefaultModels()),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.obs = observability.OrNop(r.obs)
	r.logger = r.obs.Component("router")
	return r
}

// Route sets ToolChoice and, for multi-tool patterns, ToolPipeline.
// Pattern matching is skipped when the question refers to earlier turns or
// when the previous choice was rejected by validation.
func (r *Router) Route(ctx context.Context, s core.State) core.State {
	ctx, span := r.obs.GetTracer().StartRouteSpan(ctx, s.ValidationRetries+1)
	defer span.End()

	d, ok := Decision{}, false
	skipPatterns := s.ValidationFailed
	if cue, found := r.cue(s.Question); found {
		r.logger.Debug("Context cue detected, skipping patterns", "cue", cue)
		skipPatterns = true
	}

	if !skipPatterns {
		var err error
		d, ok, err = r.pattern.SelectTool(ctx, s)
		if err != nil {
			r.logger.Warn("Pattern routing failed", "error", err.Error())
			ok = false
		}
	}

	if !ok {
		var err error
		d, ok, err = r.model.SelectTool(ctx, s)
		if err != nil {
			tracing.RecordSpanError(span, err)
			r.logger.Warn("Model routing failed, using default tool", "error", err.Error())
		}
		if !ok || !d.Tool.Valid() {
			d = Decision{Tool: core.AlwaysSucceedTool, Strategy: StrategyDefault}
		}
	}

	n := s.Clone()
	n.ToolChoice = d.Tool
	n.ToolPipeline = d.Pipeline
	n.PipelineIndex = 0
	n.ValidationFailed = false
	if d.RewrittenQuery != "" {
		n.RewrittenQuery = d.RewrittenQuery
	}
	n = n.WithEvent(core.TimelineEvent{
		Kind:   core.EventRoute,
		Tool:   d.Tool,
		Detail: describe(d),
	})

	pipeline := toolNames(d.Pipeline)
	tracing.AddSpanAttributes(span, map[string]interface{}{
		"route.tool":     d.Tool.String(),
		"route.strategy": d.Strategy,
		"route.pipeline": pipeline,
	})
	r.logger.LogRoute(ctx, d.Tool.String(), pipeline, d.Strategy)
	r.obs.GetMetrics().RecordRoute(d.Strategy)

	return n
}

func (r *Router) cue(question string) (string, bool) {
	if r.set == nil {
		return "", false
	}
	return r.set.ContextCue(question)
}

func describe(d Decision) string {
	var b strings.Builder
	b.WriteString(d.Strategy)
	if d.Pattern != "" {
		b.WriteString(":" + d.Pattern)
	}
	if len(d.Pipeline) > 0 {
		b.WriteString(" [" + strings.Join(toolNames(d.Pipeline), " -> ") + "]")
	}
	return b.String()
}

func toolNames(tools []core.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.String()
	}
	return out
}
