// Package tools holds the tool registry, the tool wrapper and the built-in
// tool implementations.
package tools

import (
	"errors"
	"fmt"
	"sync"

	"github.com/snow-ghost/assistant/core"
)

// ErrToolNotRegistered is returned when no executor exists for a tool.
var ErrToolNotRegistered = errors.New("tool not registered")

// Registry is the single mapping from tool identity to executor
type Registry struct {
	mu    sync.RWMutex
	funcs map[core.Tool]core.ToolFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[core.Tool]core.ToolFunc)}
}

// Register binds fn to tool, replacing any previous binding
func (r *Registry) Register(tool core.Tool, fn core.ToolFunc) error {
	if !tool.Valid() {
		return fmt.Errorf("%w: %q", core.ErrUnknownTool, tool)
	}
	if fn == nil {
		return fmt.Errorf("tool %s: nil executor", tool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[tool] = fn
	return nil
}

// Get returns the executor for tool
func (r *Registry) Get(tool core.Tool) (core.ToolFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[tool]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotRegistered, tool)
	}
	return fn, nil
}

// Tools lists registered tools in vocabulary order
func (r *Registry) Tools() []core.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Tool
	for _, t := range core.Tools() {
		if _, ok := r.funcs[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Require fails unless every given tool has an executor
func (r *Registry) Require(tools ...core.Tool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, t := range tools {
		if _, ok := r.funcs[t]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrToolNotRegistered, t))
		}
	}
	return errors.Join(errs...)
}
