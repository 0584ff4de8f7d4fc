package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/limiter"
)

// Client is an HTTP client for an LLM router exposing POST /v1/chat
type Client struct {
	baseURL      string
	httpClient   *http.Client
	defaultModel string
	modelTag     string
}

// Config holds client configuration
type Config struct {
	BaseURL      string
	DefaultModel string
	ModelTag     string
	Timeout      time.Duration
}

// NewClient creates a new LLM router client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:      config.BaseURL,
		defaultModel: config.DefaultModel,
		modelTag:     config.ModelTag,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Chat sends a chat completion request to the LLM router.
// Non-2xx answers are returned as *limiter.HTTPError so callers can retry them.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Model == "" {
		req.Model = c.defaultModel
	}

	if req.Metadata == nil {
		req.Metadata = make(map[string]string)
	}
	if c.modelTag != "" {
		req.Metadata["task_domain"] = c.modelTag
	}

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat", bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Caller", req.Caller)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("LLM router: %w", limiter.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(body)))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &chatResp, nil
}

// Complete implements core.Completer on top of Chat
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		Model:       req.Model,
		Messages:    messages(req),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Caller:      req.Caller,
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Health checks if the LLM router is healthy
func (c *Client) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("LLM router health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

var _ core.Completer = (*Client)(nil)
