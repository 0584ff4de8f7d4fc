package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/limiter"
)

// OpenAICompleter implements core.Completer for OpenAI-compatible APIs
type OpenAICompleter struct {
	client *openai.Client
}

// NewOpenAICompleter creates a completer. An empty baseURL keeps the OpenAI default.
func NewOpenAICompleter(baseURL, apiKey string) *OpenAICompleter {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &OpenAICompleter{client: openai.NewClientWithConfig(config)}
}

// Complete performs one chat completion and returns the first choice
func (c *OpenAICompleter) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	msgs := messages(req)
	chat := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		chat[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	response, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    chat,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		User:        req.Caller,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", statusError(err))
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai chat completion returned no choices")
	}

	return response.Choices[0].Message.Content, nil
}

// statusError exposes the HTTP status of API failures to the retry policy
func statusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(apiErr.HTTPStatusCode, apiErr.Message, "")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return limiter.NewHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), "")
	}
	return err
}

var _ core.Completer = (*OpenAICompleter)(nil)
