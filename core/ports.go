package core

import "context"

// ToolFunc executes one tool against the request state and returns the
// updated state. Expected "no data" outcomes must be encoded in the answer
// text, not returned as errors.
type ToolFunc func(ctx context.Context, s State) (State, error)

// CompletionRequest is a single-turn language-model call.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int
	Caller      string
}

// Completer is the language-model collaborator used by the classifier,
// router, validator and the general tool.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// Observer receives timeline events as they are produced.
type Observer func(TimelineEvent)
