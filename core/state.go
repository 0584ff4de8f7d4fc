package core

import (
	"slices"
	"strings"
	"time"
)

// State is the record threaded through one request.
//
// Stages never mutate a State they received: they call Clone (or one of the
// With helpers, which clone) and return the new version. Slices are therefore
// never shared between two versions.
type State struct {
	Question       string     `json:"question"`
	Difficulty     Difficulty `json:"difficulty"`
	History        []Turn     `json:"history,omitempty"`
	RewrittenQuery string     `json:"rewritten_query,omitempty"`

	ToolChoice    Tool       `json:"tool_choice,omitempty"`
	ToolPipeline  []Tool     `json:"tool_pipeline,omitempty"`
	PipelineIndex int        `json:"pipeline_index"`
	ToolStatus    ToolStatus `json:"tool_status"`
	FailureReason string     `json:"failure_reason,omitempty"`

	RetryCount        int    `json:"retry_count"`
	MaxRetries        int    `json:"max_retries"`
	ValidationRetries int    `json:"validation_retries"`
	MaxValidation     int    `json:"max_validation"`
	ValidationFailed  bool   `json:"validation_failed,omitempty"`
	RejectedTools     []Tool `json:"rejected_tools,omitempty"`
	FailedTools       []Tool `json:"failed_tools,omitempty"`

	QuestionType  QuestionType `json:"question_type,omitempty"`
	FallbackChain []Tool       `json:"fallback_chain,omitempty"`

	Timeline           []TimelineEvent `json:"tool_timeline,omitempty"`
	PipelineTerminated bool            `json:"pipeline_terminated,omitempty"`
	TerminationReason  string          `json:"termination_reason,omitempty"`

	FinalAnswer  string   `json:"final_answer,omitempty"`
	FinalAnswers []string `json:"final_answers,omitempty"`
	ToolResult   string   `json:"tool_result,omitempty"`

	Stage       Stage   `json:"stage,omitempty"`
	Transitions []Stage `json:"transitions,omitempty"`
}

// NewState creates the initial record for a question.
func NewState(question string, difficulty Difficulty) State {
	if difficulty == "" {
		difficulty = DifficultyEasy
	}
	return State{
		Question:   question,
		Difficulty: difficulty,
		ToolStatus: StatusPending,
	}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	n := s
	n.History = slices.Clone(s.History)
	n.ToolPipeline = slices.Clone(s.ToolPipeline)
	n.RejectedTools = slices.Clone(s.RejectedTools)
	n.FailedTools = slices.Clone(s.FailedTools)
	n.FallbackChain = slices.Clone(s.FallbackChain)
	n.Timeline = slices.Clone(s.Timeline)
	n.FinalAnswers = slices.Clone(s.FinalAnswers)
	n.Transitions = slices.Clone(s.Transitions)
	return n
}

// WithEvent returns a copy of s with e appended to the timeline.
// A zero timestamp is filled with the current time.
func (s State) WithEvent(e TimelineEvent) State {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	n := s.Clone()
	n.Timeline = append(n.Timeline, e)
	return n
}

// WithStage returns a copy of s that entered stage st.
func (s State) WithStage(st Stage) State {
	n := s.Clone()
	n.Stage = st
	n.Transitions = append(n.Transitions, st)
	return n
}

// WithAnswer returns a copy of s carrying answer as the final answer.
func (s State) WithAnswer(answer string) State {
	n := s.Clone()
	n.FinalAnswer = answer
	return n
}

// Query is the text tools should work on: the context-resolved rewrite when
// the router produced one, otherwise the original question.
func (s State) Query() string {
	if q := strings.TrimSpace(s.RewrittenQuery); q != "" {
		return q
	}
	return s.Question
}

// Output is the textual result of the last tool, as seen by failure detection.
func (s State) Output() string {
	if s.FinalAnswer != "" {
		return s.FinalAnswer
	}
	return strings.Join(s.FinalAnswers, "\n")
}

// HasFailed reports whether t was already tried and rejected.
func (s State) HasFailed(t Tool) bool {
	return slices.Contains(s.FailedTools, t)
}

// HasRejected reports whether validation already rejected t.
func (s State) HasRejected(t Tool) bool {
	return slices.Contains(s.RejectedTools, t)
}

// InPipeline reports whether the request runs a multi-tool plan.
func (s State) InPipeline() bool {
	return len(s.ToolPipeline) > 1
}

// Events returns the timeline entries of the given kind.
func (s State) Events(kind EventKind) []TimelineEvent {
	var out []TimelineEvent
	for _, e := range s.Timeline {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// InvokedTools lists the tools that actually started, in order.
func (s State) InvokedTools() []Tool {
	var out []Tool
	for _, e := range s.Timeline {
		if e.Kind == EventToolStart {
			out = append(out, e.Tool)
		}
	}
	return out
}
