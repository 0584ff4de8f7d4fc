// Package mock provides a scripted core.Completer for tests and offline runs.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/snow-ghost/assistant/core"
)

// ErrNoScript is returned when a caller has no scripted response and no default is set
var ErrNoScript = errors.New("mock: no scripted response")

// Response is one scripted answer
type Response struct {
	Text string
	Err  error
}

// Completer replays scripted responses per caller. Each caller's queue is
// consumed in order and its last entry repeats once the queue is drained.
type Completer struct {
	mu        sync.Mutex
	scripts   map[string][]Response
	fallback  *Response
	requests  []core.CompletionRequest
	responder func(req core.CompletionRequest) (string, error)
}

// New creates an empty scripted completer
func New() *Completer {
	return &Completer{scripts: make(map[string][]Response)}
}

// On queues responses for caller
func (c *Completer) On(caller string, responses ...Response) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts[caller] = append(c.scripts[caller], responses...)
	return c
}

// Reply queues text answers for caller
func (c *Completer) Reply(caller string, texts ...string) *Completer {
	responses := make([]Response, len(texts))
	for i, t := range texts {
		responses[i] = Response{Text: t}
	}
	return c.On(caller, responses...)
}

// Fail queues an error for caller
func (c *Completer) Fail(caller string, err error) *Completer {
	return c.On(caller, Response{Err: err})
}

// Default sets the answer for callers without a script
func (c *Completer) Default(text string) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = &Response{Text: text}
	return c
}

// Respond computes answers dynamically for callers without a script
func (c *Completer) Respond(fn func(req core.CompletionRequest) (string, error)) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responder = fn
	return c
}

// Complete implements core.Completer
func (c *Completer) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.requests = append(c.requests, req)
	queue := c.scripts[req.Caller]
	responder := c.responder
	fallback := c.fallback

	if len(queue) > 0 {
		resp := queue[0]
		if len(queue) > 1 {
			c.scripts[req.Caller] = queue[1:]
		}
		c.mu.Unlock()
		return resp.Text, resp.Err
	}
	c.mu.Unlock()

	if responder != nil {
		return responder(req)
	}
	if fallback != nil {
		return fallback.Text, nil
	}
	return "", ErrNoScript
}

// Calls returns how many requests caller made
func (c *Completer) Calls(caller string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.requests {
		if r.Caller == caller {
			n++
		}
	}
	return n
}

// Requests returns a copy of every request received
func (c *Completer) Requests() []core.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.CompletionRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

var _ core.Completer = (*Completer)(nil)
