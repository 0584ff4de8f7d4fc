package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrUnknownQuestionType = errors.New("unknown question type")
	ErrUnknownDifficulty   = errors.New("unknown difficulty")
)

// Tool identifies one capability the assistant can invoke.
// The vocabulary is closed; use ParseTool to convert untrusted strings.
type Tool string

const (
	ToolGeneral     Tool = "general"
	ToolGlossary    Tool = "glossary"
	ToolSearchPaper Tool = "search_paper"
	ToolWebSearch   Tool = "web_search"
	ToolSummarize   Tool = "summarize"
	ToolText2SQL    Tool = "text2sql"
	ToolSaveFile    Tool = "save_file"
)

// AlwaysSucceedTool is the terminal fallback. Its runs are never classified as failures.
const AlwaysSucceedTool = ToolGeneral

var allTools = []Tool{
	ToolGeneral,
	ToolGlossary,
	ToolSearchPaper,
	ToolWebSearch,
	ToolSummarize,
	ToolText2SQL,
	ToolSaveFile,
}

// Tools returns the full tool vocabulary in a stable order.
func Tools() []Tool {
	return slices.Clone(allTools)
}

// Valid reports whether t belongs to the tool vocabulary.
func (t Tool) Valid() bool {
	return slices.Contains(allTools, t)
}

func (t Tool) String() string { return string(t) }

// ParseTool normalizes and validates a tool name.
func ParseTool(name string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(name)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// ParseTools converts a list of names, failing on the first unknown entry.
func ParseTools(names []string) ([]Tool, error) {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		t, err := ParseTool(n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// QuestionType is the category the classifier assigns to a question.
type QuestionType string

const (
	QuestionTermDefinition QuestionType = "term_definition"
	QuestionPaperSearch    QuestionType = "paper_search"
	QuestionLatestResearch QuestionType = "latest_research"
	QuestionPaperSummary   QuestionType = "paper_summary"
	QuestionStatistics     QuestionType = "statistics"
	QuestionFileSave       QuestionType = "file_save"
	QuestionGeneral        QuestionType = "general_question"
)

var allQuestionTypes = []QuestionType{
	QuestionTermDefinition,
	QuestionPaperSearch,
	QuestionLatestResearch,
	QuestionPaperSummary,
	QuestionStatistics,
	QuestionFileSave,
	QuestionGeneral,
}

// QuestionTypes returns every known question type.
func QuestionTypes() []QuestionType {
	return slices.Clone(allQuestionTypes)
}

// Valid reports whether q is one of the known categories.
func (q QuestionType) Valid() bool {
	return slices.Contains(allQuestionTypes, q)
}

// ParseQuestionType validates a category name.
func ParseQuestionType(name string) (QuestionType, error) {
	q := QuestionType(strings.ToLower(strings.TrimSpace(name)))
	if !q.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownQuestionType, name)
	}
	return q, nil
}

// Difficulty selects the prompt and model variant used by collaborators.
type Difficulty string

const (
	DifficultyEasy Difficulty = "easy"
	DifficultyHard Difficulty = "hard"
)

// ParseDifficulty accepts "easy" or "hard"; empty input means easy.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DifficultyEasy):
		return DifficultyEasy, nil
	case string(DifficultyHard):
		return DifficultyHard, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
}

// ToolStatus is the outcome of the most recent tool invocation.
type ToolStatus string

const (
	StatusPending ToolStatus = "pending"
	StatusSuccess ToolStatus = "success"
	StatusFailed  ToolStatus = "failed"
	StatusError   ToolStatus = "error"
)

// Failed reports whether the status should trigger recovery.
func (s ToolStatus) Failed() bool {
	return s == StatusFailed || s == StatusError
}

// Stage is a state of the orchestration state machine.
type Stage string

const (
	StageRouting         Stage = "routing"
	StageValidating      Stage = "validating"
	StageExecuting       Stage = "executing"
	StagePipelineAdvance Stage = "pipeline_advance"
	StageFallbackRetry   Stage = "fallback_retry"
	StageFinalFallback   Stage = "final_fallback"
	StageDone            Stage = "done"
)

// EventKind labels a timeline entry.
type EventKind string

const (
	EventToolStart        EventKind = "tool_start"
	EventToolEnd          EventKind = "tool_end"
	EventPipelineProgress EventKind = "pipeline_progress"
	EventFallback         EventKind = "fallback"
	EventPipelineFallback EventKind = "pipeline_fallback"
	EventPipelineSkip     EventKind = "pipeline_skip"
	EventFinalFallback    EventKind = "final_fallback"
	EventRoute            EventKind = "route"
	EventValidation       EventKind = "validation"
)

// TimelineEvent is one entry of the per-request audit log.
type TimelineEvent struct {
	Timestamp time.Time  `json:"timestamp"`
	Kind      EventKind  `json:"kind"`
	Tool      Tool       `json:"tool,omitempty"`
	Status    ToolStatus `json:"status,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Detail    string     `json:"detail,omitempty"`
}

// Turn is one prior exchange of the conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
