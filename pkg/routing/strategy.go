package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/patterns"
)

// Caller identifies router requests to the model collaborator.
const Caller = "router"

// Strategy names reported in decisions, logs and metrics.
const (
	StrategyPattern = "pattern"
	StrategyModel   = "model"
	StrategyDefault = "default"
)

// historyTurns bounds how much conversation the model sees.
const historyTurns = 3

// Decision is the outcome of one selection strategy
type Decision struct {
	Tool           core.Tool
	Pipeline       []core.Tool
	RewrittenQuery string
	Strategy       string
	Pattern        string
}

// ToolSelector defines the interface for tool selection strategies.
// ok is false when the strategy has no opinion and the next one should run.
type ToolSelector interface {
	SelectTool(ctx context.Context, s core.State) (d Decision, ok bool, err error)
}

// PatternStrategy selects by matching configured multi-tool request patterns
type PatternStrategy struct {
	set *patterns.Set
}

// NewPatternStrategy creates a new pattern strategy
func NewPatternStrategy(set *patterns.Set) *PatternStrategy {
	return &PatternStrategy{set: set}
}

// SelectTool returns the highest-priority matching pattern. Patterns with
// more than one tool become a pipeline.
func (p *PatternStrategy) SelectTool(ctx context.Context, s core.State) (Decision, bool, error) {
	if p.set == nil {
		return Decision{}, false, nil
	}

	match, ok := p.set.Match(s.Question)
	if !ok {
		return Decision{}, false, nil
	}

	d := Decision{
		Tool:     match.Tools[0],
		Strategy: StrategyPattern,
		Pattern:  match.Name,
	}
	if len(match.Tools) > 1 {
		d.Pipeline = match.Tools
	}
	return d, true, nil
}

// ModelStrategy delegates the choice to a language model
type ModelStrategy struct {
	llm    core.Completer
	models llm.ModelSet
}

// NewModelStrategy creates a new model strategy
func NewModelStrategy(completer core.Completer, models llm.ModelSet) *ModelStrategy {
	return &ModelStrategy{llm: completer, models: models}
}

// SelectTool asks the model for one tool. Unusable answers select the
// always-succeed tool; call errors are returned with that same decision.
func (m *ModelStrategy) SelectTool(ctx context.Context, s core.State) (Decision, bool, error) {
	fallback := Decision{Tool: core.AlwaysSucceedTool, Strategy: StrategyDefault}
	if m.llm == nil {
		return fallback, true, nil
	}

	answer, err := m.llm.Complete(ctx, core.CompletionRequest{
		Model:       m.models.For(s.Difficulty),
		System:      routerSystemPrompt,
		Prompt:      routerPrompt(s),
		Temperature: 0,
		MaxTokens:   200,
		Caller:      Caller,
	})
	if err != nil {
		return fallback, true, fmt.Errorf("model routing: %w", err)
	}

	tool, query, ok := ParseAnswer(answer)
	if !ok {
		return fallback, true, nil
	}

	return Decision{
		Tool:           tool,
		RewrittenQuery: query,
		Strategy:       StrategyModel,
	}, true, nil
}

const routerSystemPrompt = `You route questions of a research assistant to exactly one tool.

glossary: definitions of terms from the domain glossary
search_paper: search the paper database
web_search: search the web for recent information
summarize: summarize papers or documents
text2sql: answer statistics questions with a database query
save_file: save previous results to a file
general: answer directly

Reply with JSON: {"tool": "<tool name>", "query": "<the question rewritten to stand alone>"}`

func routerPrompt(s core.State) string {
	var b strings.Builder

	history := s.History
	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		b.WriteString("\n")
	}

	if len(s.RejectedTools) > 0 {
		names := make([]string, len(s.RejectedTools))
		for i, t := range s.RejectedTools {
			names[i] = t.String()
		}
		fmt.Fprintf(&b, "These tools were judged wrong for this question: %s\n\n", strings.Join(names, ", "))
	}

	fmt.Fprintf(&b, "Question: %s", s.Question)
	return b.String()
}

type modelAnswer struct {
	Tool  string `json:"tool"`
	Query string `json:"query"`
}

// ParseAnswer reads a routing answer. JSON objects are preferred; otherwise
// the first token is taken as the tool name.
func ParseAnswer(answer string) (core.Tool, string, bool) {
	if start, end := strings.Index(answer, "{"), strings.LastIndex(answer, "}"); start >= 0 && end > start {
		var parsed modelAnswer
		if err := json.Unmarshal([]byte(answer[start:end+1]), &parsed); err == nil {
			tool, err := core.ParseTool(parsed.Tool)
			if err != nil {
				return "", "", false
			}
			return tool, strings.TrimSpace(parsed.Query), true
		}
	}

	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return "", "", false
	}
	tool, err := core.ParseTool(strings.Trim(fields[0], "\"'`.,:;*[](){}"))
	if err != nil {
		return "", "", false
	}
	return tool, "", true
}
