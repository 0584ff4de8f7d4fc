// Package patterns loads multi-tool request patterns and matches questions
// against them.
package patterns

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/logging"
)

// ErrInvalidPatterns is returned for a pattern file that fails validation.
var ErrInvalidPatterns = errors.New("invalid request patterns")

//go:embed default_patterns.yaml
var defaultYAML []byte

// Pattern maps a family of questions to a tool plan.
type Pattern struct {
	Name            string      `json:"name" yaml:"name" validate:"required"`
	Keywords        []string    `json:"keywords,omitempty" yaml:"keywords" validate:"required_without=AnyOfKeywords,dive,required"`
	AnyOfKeywords   []string    `json:"any_of_keywords,omitempty" yaml:"any_of_keywords" validate:"dive,required"`
	ExcludeKeywords []string    `json:"exclude_keywords,omitempty" yaml:"exclude_keywords" validate:"dive,required"`
	Tools           []core.Tool `json:"tools" yaml:"tools" validate:"required,min=1,dive,tool"`
	Priority        int         `json:"priority" yaml:"priority"`
	Description     string      `json:"description,omitempty" yaml:"description"`
}

// Matches reports whether normalized (lowercased) text satisfies the pattern.
func (p Pattern) Matches(text string) bool {
	for _, k := range p.Keywords {
		if !strings.Contains(text, k) {
			return false
		}
	}
	if len(p.AnyOfKeywords) > 0 && !slices.ContainsFunc(p.AnyOfKeywords, func(k string) bool {
		return strings.Contains(text, k)
	}) {
		return false
	}
	for _, k := range p.ExcludeKeywords {
		if strings.Contains(text, k) {
			return false
		}
	}
	return true
}

type file struct {
	ContextCues []string  `yaml:"context_cues"`
	Patterns    []Pattern `yaml:"patterns" validate:"dive"`
}

// Set is an immutable, validated collection of patterns plus the
// contextual-reference cues that bypass pattern matching.
type Set struct {
	patterns []Pattern
	cues     []string
	cueRe    *regexp2.Regexp
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tool", func(fl validator.FieldLevel) bool {
		return core.Tool(fl.Field().String()).Valid()
	})
	return v
}

// Parse decodes and validates a pattern document.
func Parse(data []byte) (*Set, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatterns, err)
	}
	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatterns, err)
	}
	return NewSet(f.Patterns, f.ContextCues)
}

// NewSet builds a set from already decoded patterns. Keywords and cues are
// matched case-insensitively.
func NewSet(patterns []Pattern, cues []string) (*Set, error) {
	s := &Set{}
	for _, p := range patterns {
		p.Keywords = normalize(p.Keywords)
		p.AnyOfKeywords = normalize(p.AnyOfKeywords)
		p.ExcludeKeywords = normalize(p.ExcludeKeywords)
		p.Tools = slices.Clone(p.Tools)
		s.patterns = append(s.patterns, p)
	}

	s.cues = normalize(cues)
	if len(s.cues) > 0 {
		quoted := make([]string, len(s.cues))
		for i, c := range s.cues {
			quoted[i] = regexp2.Escape(c)
		}
		re, err := regexp2.Compile(`\b(?:`+strings.Join(quoted, "|")+`)\b`, regexp2.IgnoreCase)
		if err != nil {
			return nil, fmt.Errorf("%w: context cues: %v", ErrInvalidPatterns, err)
		}
		re.MatchTimeout = 100 * time.Millisecond
		s.cueRe = re
	}
	return s, nil
}

// Default returns the embedded pattern set.
func Default() *Set {
	s, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded patterns: %v", err))
	}
	return s
}

// Load reads the pattern file at path. An empty path or a missing file
// yields the embedded defaults; a file that exists but is invalid is an error.
func Load(path string, logger *logging.Logger) (*Set, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Pattern file not found, using defaults", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file %s: %w", path, err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Info("Request patterns loaded", "path", path, "patterns", len(s.patterns))
	return s, nil
}

// Match returns the highest-priority pattern matching question. Equal
// priorities keep file order.
func (s *Set) Match(question string) (Pattern, bool) {
	text := strings.ToLower(question)

	best := -1
	for i, p := range s.patterns {
		if !p.Matches(text) {
			continue
		}
		if best < 0 || p.Priority > s.patterns[best].Priority {
			best = i
		}
	}
	if best < 0 {
		return Pattern{}, false
	}

	p := s.patterns[best]
	p.Tools = slices.Clone(p.Tools)
	return p, true
}

// ContextCue returns the first contextual-reference cue found in question,
// matched on word boundaries.
func (s *Set) ContextCue(question string) (string, bool) {
	if s.cueRe == nil {
		return "", false
	}
	m, err := s.cueRe.FindStringMatch(question)
	if err != nil || m == nil {
		return "", false
	}
	return strings.ToLower(m.String()), true
}

// Patterns returns a copy of the patterns in file order.
func (s *Set) Patterns() []Pattern {
	out := make([]Pattern, len(s.patterns))
	for i, p := range s.patterns {
		p.Tools = slices.Clone(p.Tools)
		out[i] = p
	}
	return out
}

func normalize(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
