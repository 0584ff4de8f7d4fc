// Package validation re-checks routing decisions before tools run.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
)

// Caller identifies validator requests to the model collaborator.
const Caller = "validator"

// Verdict is a checker's opinion of a routing choice
type Verdict struct {
	Agree  bool
	Reason string
}

// Checker judges whether the routed tool fits the question
type Checker interface {
	Check(ctx context.Context, s core.State) (Verdict, error)
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context, s core.State) (Verdict, error)

// Check calls f
func (f CheckerFunc) Check(ctx context.Context, s core.State) (Verdict, error) {
	return f(ctx, s)
}

// LLMChecker asks a language model to confirm the choice
type LLMChecker struct {
	llm    core.Completer
	models llm.ModelSet
}

// NewLLMChecker creates a model-backed checker
func NewLLMChecker(completer core.Completer, models llm.ModelSet) *LLMChecker {
	return &LLMChecker{llm: completer, models: models}
}

const checkerSystemPrompt = `You review tool choices of a research assistant.
Tools: glossary (term definitions), search_paper (paper database), web_search (recent information),
summarize (summaries), text2sql (statistics), save_file (export results), general (direct answer).
Reply "yes" if the proposed tool fits the question, otherwise "no" followed by a short reason.`

// Check returns agreement unless the model answers with "no"
func (c *LLMChecker) Check(ctx context.Context, s core.State) (Verdict, error) {
	plan := s.ToolChoice.String()
	if len(s.ToolPipeline) > 0 {
		names := make([]string, len(s.ToolPipeline))
		for i, t := range s.ToolPipeline {
			names[i] = t.String()
		}
		plan = strings.Join(names, " -> ")
	}

	answer, err := c.llm.Complete(ctx, core.CompletionRequest{
		Model:       c.models.For(s.Difficulty),
		System:      checkerSystemPrompt,
		Prompt:      fmt.Sprintf("Question: %s\nProposed tool: %s", s.Query(), plan),
		Temperature: 0,
		MaxTokens:   60,
		Caller:      Caller,
	})
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(answer), nil
}

// ParseVerdict reads a yes/no answer. Only an explicit "no" disagrees.
func ParseVerdict(answer string) Verdict {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return Verdict{Agree: true}
	}
	first := strings.ToLower(strings.Trim(fields[0], "\"'`.,:;!*"))
	if first != "no" {
		return Verdict{Agree: true}
	}
	return Verdict{
		Agree:  false,
		Reason: strings.TrimSpace(strings.Join(fields[1:], " ")),
	}
}

// Validator bounds how often a routing choice may be rejected
type Validator struct {
	checker Checker
	obs     *observability.Manager
	logger  *logging.Logger
}

// New creates a validator
func New(checker Checker, obs *observability.Manager) *Validator {
	obs = observability.OrNop(obs)
	return &Validator{
		checker: checker,
		obs:     obs,
		logger:  obs.Component("validator"),
	}
}

// Validate sets ValidationFailed when the checker disagrees and retries
// remain. At the limit, or when the checker errors, the choice is accepted.
func (v *Validator) Validate(ctx context.Context, s core.State) core.State {
	n := s.Clone()
	n.ValidationFailed = false

	if n.ValidationRetries >= n.MaxValidation {
		return n.WithEvent(core.TimelineEvent{
			Kind:   core.EventValidation,
			Tool:   n.ToolChoice,
			Status: core.StatusSuccess,
			Detail: "validation limit reached, choice accepted",
		})
	}

	verdict, err := v.checker.Check(ctx, s)
	if err != nil {
		v.logger.Warn("Validation check failed, accepting choice",
			"tool", n.ToolChoice.String(),
			"error", err.Error(),
		)
		return n.WithEvent(core.TimelineEvent{
			Kind:   core.EventValidation,
			Tool:   n.ToolChoice,
			Status: core.StatusSuccess,
			Detail: "check unavailable, choice accepted",
		})
	}

	if verdict.Agree {
		return n.WithEvent(core.TimelineEvent{
			Kind:   core.EventValidation,
			Tool:   n.ToolChoice,
			Status: core.StatusSuccess,
		})
	}

	n.ValidationFailed = true
	n.ValidationRetries++
	if !n.HasRejected(n.ToolChoice) {
		n.RejectedTools = append(n.RejectedTools, n.ToolChoice)
	}
	v.obs.GetMetrics().RecordValidationRejection()
	v.logger.Info("Routing choice rejected",
		"tool", n.ToolChoice.String(),
		"reason", verdict.Reason,
		"validation_retries", n.ValidationRetries,
	)

	return n.WithEvent(core.TimelineEvent{
		Kind:   core.EventValidation,
		Tool:   n.ToolChoice,
		Status: core.StatusFailed,
		Reason: verdict.Reason,
	})
}
