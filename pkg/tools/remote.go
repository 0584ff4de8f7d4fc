package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/limiter"
)

// RemoteConfig configures a Remote tool backend
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Remote executes tools served over HTTP at POST {BaseURL}/tools/{name}
type Remote struct {
	baseURL *url.URL
	client  *http.Client
}

// RemoteRequest is the payload sent to a tool backend
type RemoteRequest struct {
	Question     string      `json:"question"`
	Query        string      `json:"query"`
	Difficulty   string      `json:"difficulty"`
	QuestionType string      `json:"question_type,omitempty"`
	History      []core.Turn `json:"history,omitempty"`
	ToolResult   string      `json:"tool_result,omitempty"`
}

// RemoteResponse is a tool backend's answer. Expected "no data" outcomes are
// reported in Answer, not as HTTP errors.
type RemoteResponse struct {
	Answer     string   `json:"answer"`
	Answers    []string `json:"answers,omitempty"`
	ToolResult string   `json:"tool_result,omitempty"`
}

// NewRemote creates a remote tool backend
func NewRemote(config RemoteConfig) (*Remote, error) {
	u, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Host == "" {
		return nil, errors.New("missing host")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Remote{
		baseURL: u,
		client:  &http.Client{Timeout: config.Timeout},
	}, nil
}

// Func returns the executor for tool
func (r *Remote) Func(tool core.Tool) core.ToolFunc {
	return func(ctx context.Context, s core.State) (core.State, error) {
		resp, err := r.call(ctx, tool, RemoteRequest{
			Question:     s.Question,
			Query:        s.Query(),
			Difficulty:   string(s.Difficulty),
			QuestionType: string(s.QuestionType),
			History:      s.History,
			ToolResult:   s.ToolResult,
		})
		if err != nil {
			return s, err
		}

		n := s.Clone()
		n.FinalAnswer = resp.Answer
		n.FinalAnswers = resp.Answers
		n.ToolResult = resp.ToolResult
		if n.ToolResult == "" {
			n.ToolResult = n.Output()
		}
		return n, nil
	}
}

func (r *Remote) call(ctx context.Context, tool core.Tool, payload RemoteRequest) (*RemoteResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := r.baseURL.JoinPath("tools", tool.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %s: %w", tool, limiter.NewHTTPError(resp.StatusCode, http.StatusText(resp.StatusCode), string(data)))
	}

	var out RemoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("tool %s: invalid response: %w", tool, err)
	}
	return &out, nil
}

// RegisterDefaults binds every tool: general to the model-backed answerer,
// the rest to remote when set, otherwise to Unavailable.
func RegisterDefaults(reg *Registry, general core.ToolFunc, remote *Remote) error {
	for _, t := range core.Tools() {
		fn := Unavailable(t)
		switch {
		case t == core.AlwaysSucceedTool:
			fn = general
		case remote != nil:
			fn = remote.Func(t)
		}
		if err := reg.Register(t, fn); err != nil {
			return err
		}
	}
	return nil
}
