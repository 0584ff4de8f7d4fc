package llm

import (
	"github.com/snow-ghost/assistant/core"
)

// ModelSet names the model used for each difficulty level
type ModelSet struct {
	Easy string `json:"easy"`
	Hard string `json:"hard"`
}

// DefaultModels returns the models used when none are configured
func DefaultModels() ModelSet {
	return ModelSet{
		Easy: "gpt-4o-mini",
		Hard: "gpt-4o",
	}
}

// For returns the model for difficulty d. Hard falls back to Easy when unset.
func (m ModelSet) For(d core.Difficulty) string {
	if d == core.DifficultyHard && m.Hard != "" {
		return m.Hard
	}
	return m.Easy
}

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float32           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Caller      string            `json:"caller,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	FinishReason string `json:"finish_reason"`
}

// messages converts a single-turn completion into chat messages
func messages(req core.CompletionRequest) []Message {
	var out []Message
	if req.System != "" {
		out = append(out, Message{Role: "system", Content: req.System})
	}
	return append(out, Message{Role: "user", Content: req.Prompt})
}
