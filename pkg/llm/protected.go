package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/limiter"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/tokens"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// ProtectedCompleter guards a Completer with per-model rate limiting,
// retries and a circuit breaker, and accounts tokens for every call.
type ProtectedCompleter struct {
	next       core.Completer
	provider   string
	protection *limiter.ProtectionManager
	encoders   *tokens.EncoderRegistry
	obs        *observability.Manager
}

// ProtectedOption configures a ProtectedCompleter
type ProtectedOption func(*ProtectedCompleter)

// WithProtection sets the protection manager
func WithProtection(pm *limiter.ProtectionManager) ProtectedOption {
	return func(p *ProtectedCompleter) {
		p.protection = pm
	}
}

// WithEncoders sets the token encoder registry
func WithEncoders(r *tokens.EncoderRegistry) ProtectedOption {
	return func(p *ProtectedCompleter) {
		p.encoders = r
	}
}

// WithObservability sets the observability manager
func WithObservability(m *observability.Manager) ProtectedOption {
	return func(p *ProtectedCompleter) {
		p.obs = m
	}
}

// NewProtectedCompleter wraps next. provider only labels spans and logs.
func NewProtectedCompleter(next core.Completer, provider string, opts ...ProtectedOption) *ProtectedCompleter {
	p := &ProtectedCompleter{
		next:     next,
		provider: provider,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.obs = observability.OrNop(p.obs)
	if p.encoders == nil {
		p.encoders = tokens.NewEncoderRegistry()
	}
	if p.protection == nil {
		logger := p.obs.Component("llm")
		m := p.obs.GetMetrics()
		p.protection = limiter.NewProtectionManager(limiter.ProtectionConfig{
			MaxRPM: limiter.DefaultMaxRPM,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
				m.RecordCircuitState(name, to.String())
			},
		})
	}
	return p
}

// Complete runs the wrapped call under protection keyed by the model name
func (p *ProtectedCompleter) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = "default"
	}

	ctx, span := p.obs.GetTracer().StartLLMSpan(ctx, req.Caller, model, p.provider)
	defer span.End()

	start := time.Now()
	out, err := p.protection.ExecuteWithProtection(ctx, model, func(ctx context.Context) (interface{}, error) {
		return p.next.Complete(ctx, req)
	})
	tracing.RecordSpanDuration(span, time.Since(start))
	if err != nil {
		tracing.RecordSpanError(span, err)
		p.obs.Component("llm").Warn("Model call failed",
			"caller", req.Caller,
			"model", model,
			"provider", p.provider,
			"error", err.Error(),
		)
		return "", fmt.Errorf("model %s: %w", model, err)
	}

	text, _ := out.(string)
	in := p.encoders.CountTokensInMessages(model, []string{req.System, req.Prompt})
	outTokens := p.encoders.CountTokens(model, text)
	p.obs.GetMetrics().RecordTokens(model, in, outTokens)
	tracing.RecordSpanTokens(span, in, outTokens)
	tracing.RecordSpanSuccess(span)

	return text, nil
}

// Available reports whether calls for model are currently admitted
func (p *ProtectedCompleter) Available(model string) bool {
	return p.protection.IsAvailable(model)
}

var _ core.Completer = (*ProtectedCompleter)(nil)
