package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/llm"
)

// GeneralCaller identifies general-answer requests to the model collaborator.
const GeneralCaller = "tool/general"

const generalSystemPrompt = `You are a helpful research assistant. Answer the question directly and concisely.
If earlier tools produced partial results, use them.`

// NewGeneralTool returns the always-succeed tool answering with a language model
func NewGeneralTool(completer core.Completer, models llm.ModelSet) core.ToolFunc {
	return func(ctx context.Context, s core.State) (core.State, error) {
		answer, err := completer.Complete(ctx, core.CompletionRequest{
			Model:       models.For(s.Difficulty),
			System:      generalSystemPrompt,
			Prompt:      generalPrompt(s),
			Temperature: 0.3,
			MaxTokens:   800,
			Caller:      GeneralCaller,
		})
		if err != nil {
			return s, fmt.Errorf("general answer: %w", err)
		}

		n := s.WithAnswer(strings.TrimSpace(answer))
		n.FinalAnswers = nil
		return n, nil
	}
}

func generalPrompt(s core.State) string {
	var b strings.Builder
	for _, turn := range s.History {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
	if s.ToolResult != "" {
		fmt.Fprintf(&b, "\nEarlier results:\n%s\n", s.ToolResult)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", s.Query())
	return b.String()
}

// Unavailable returns an executor for a tool with no backend. Its answer is
// a recognizable failure so the orchestrator falls back.
func Unavailable(tool core.Tool) core.ToolFunc {
	return func(ctx context.Context, s core.State) (core.State, error) {
		n := s.WithAnswer(fmt.Sprintf("No results found: the %s tool is not configured.", tool))
		n.FinalAnswers = nil
		return n, nil
	}
}
