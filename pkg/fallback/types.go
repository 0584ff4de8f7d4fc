package fallback

import (
	"fmt"
	"slices"

	"github.com/snow-ghost/assistant/core"
)

// Config is the resolved fallback configuration. It is read-only once
// published by a Resolver; use Clone before modifying.
type Config struct {
	Enabled           bool                              `json:"enabled" yaml:"enabled"`
	MaxRetries        int                               `json:"max_retries" yaml:"max_retries"`
	ValidationEnabled bool                              `json:"validation_enabled" yaml:"validation_enabled"`
	ValidationRetries int                               `json:"validation_retries" yaml:"validation_retries"`
	Priorities        map[core.QuestionType][]core.Tool `json:"priorities" yaml:"priorities"`

	// Source is "defaults" or the path the overrides were read from.
	Source string `json:"source" yaml:"-"`
	// Warnings lists convention violations found while loading.
	Warnings []string `json:"warnings,omitempty" yaml:"-"`
}

// Chain returns a copy of the priority chain for qt. Unknown or unconfigured
// types get the general_question chain.
func (c *Config) Chain(qt core.QuestionType) []core.Tool {
	if chain, ok := c.Priorities[qt]; ok && len(chain) > 0 {
		return slices.Clone(chain)
	}
	return slices.Clone(c.Priorities[core.QuestionGeneral])
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	n := *c
	n.Priorities = make(map[core.QuestionType][]core.Tool, len(c.Priorities))
	for qt, chain := range c.Priorities {
		n.Priorities[qt] = slices.Clone(chain)
	}
	n.Warnings = slices.Clone(c.Warnings)
	return &n
}

// QuestionTypes returns the configured types in vocabulary order.
func (c *Config) QuestionTypes() []core.QuestionType {
	keys := make([]core.QuestionType, 0, len(c.Priorities))
	for k := range c.Priorities {
		keys = append(keys, k)
	}
	order := core.QuestionTypes()
	slices.SortFunc(keys, func(a, b core.QuestionType) int {
		return slices.Index(order, a) - slices.Index(order, b)
	})
	return keys
}

// ConfigError is a structured rejection of a fallback configuration.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid fallback config: %s=%v: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
