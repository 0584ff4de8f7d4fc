// Package detector classifies tool output as success or failure.
//
// Matching is heuristic. Plain substring and regex rules also fire on answers
// that merely mention a failure word ("this method reduces errors"); callers
// that need more precision should supply their own rule set through
// NewWithRules instead of relying on the defaults. regexp2 supports
// lookaround, so refined rules such as `(?<!reduces\s)errors?` are possible.
package detector

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// ErrInvalidPattern is returned when a regex rule does not compile.
var ErrInvalidPattern = errors.New("invalid failure pattern")

// EmptyResultReason is reported for blank tool output.
const EmptyResultReason = "empty result"

const matchTimeout = 100 * time.Millisecond

// DefaultLiterals are checked first, case-insensitively, in order.
var DefaultLiterals = []string{
	"no results found",
	"no relevant results",
	"could not find",
	"couldn't find",
	"not found",
	"no data available",
	"unable to retrieve",
	"an error occurred",
}

// DefaultPatterns are case-insensitive regular expressions checked after the literals.
var DefaultPatterns = []string{
	`no\s+(?:relevant\s+)?(?:results?|papers?|documents?|data|matches)\s+(?:were\s+)?found`,
	`error`,
	`fail(?:ed|ure)?`,
	`exception`,
	`timed?\s*out`,
	`traceback`,
}

// Outcome is the verdict for one piece of text.
type Outcome struct {
	Failed bool
	Reason string
}

// Strategy is the pluggable classification contract used by the tool wrapper.
type Strategy interface {
	Classify(text string) Outcome
}

// PatternSet is a snapshot of the active rules.
type PatternSet struct {
	Literals []string `json:"literals"`
	Patterns []string `json:"patterns"`
}

type compiledPattern struct {
	source string
	re     *regexp2.Regexp
}

// Detector is the literal + regex failure detector. Safe for concurrent use;
// rules can be changed at runtime.
type Detector struct {
	mu       sync.RWMutex
	literals []string
	patterns []compiledPattern
}

// New returns a detector loaded with DefaultLiterals and DefaultPatterns.
func New() *Detector {
	d, err := NewWithRules(DefaultLiterals, DefaultPatterns)
	if err != nil {
		// defaults are constants and always compile
		panic(err)
	}
	return d
}

// NewWithRules returns a detector using exactly the given rules.
func NewWithRules(literals, patterns []string) (*Detector, error) {
	d := &Detector{}
	for _, l := range literals {
		d.addLiteral(l)
	}
	for _, p := range patterns {
		if err := d.addPattern(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// IsFailed reports whether result indicates a failure and which rule matched.
func (d *Detector) IsFailed(result string) (bool, string) {
	o := d.Classify(result)
	return o.Failed, o.Reason
}

// Classify implements Strategy. The first matching rule wins.
func (d *Detector) Classify(text string) Outcome {
	if strings.TrimSpace(text) == "" {
		return Outcome{Failed: true, Reason: EmptyResultReason}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	lower := strings.ToLower(text)
	for _, l := range d.literals {
		if strings.Contains(lower, l) {
			return Outcome{Failed: true, Reason: l}
		}
	}

	for _, p := range d.patterns {
		ok, err := p.re.MatchString(text)
		if err != nil {
			// a match timeout counts as no match for this rule
			continue
		}
		if ok {
			return Outcome{Failed: true, Reason: p.source}
		}
	}

	return Outcome{}
}

// AddLiteral appends a substring rule. Duplicates are ignored.
func (d *Detector) AddLiteral(literal string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLiteral(literal)
}

// RemoveLiteral deletes a substring rule and reports whether it existed.
func (d *Detector) RemoveLiteral(literal string) bool {
	literal = normalizeLiteral(literal)

	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.Index(d.literals, literal)
	if i < 0 {
		return false
	}
	d.literals = slices.Delete(d.literals, i, i+1)
	return true
}

// AddPattern compiles and appends a regex rule.
func (d *Detector) AddPattern(expr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addPattern(expr)
}

// RemovePattern deletes a regex rule by its source and reports whether it existed.
func (d *Detector) RemovePattern(expr string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.patterns, func(p compiledPattern) bool { return p.source == expr })
	if i < 0 {
		return false
	}
	d.patterns = slices.Delete(d.patterns, i, i+1)
	return true
}

// Patterns returns a copy of the current rules.
func (d *Detector) Patterns() PatternSet {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := PatternSet{
		Literals: slices.Clone(d.literals),
		Patterns: make([]string, 0, len(d.patterns)),
	}
	for _, p := range d.patterns {
		set.Patterns = append(set.Patterns, p.source)
	}
	return set
}

func (d *Detector) addLiteral(literal string) {
	literal = normalizeLiteral(literal)
	if literal == "" || slices.Contains(d.literals, literal) {
		return
	}
	d.literals = append(d.literals, literal)
}

func (d *Detector) addPattern(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("%w: empty expression", ErrInvalidPattern)
	}
	if slices.ContainsFunc(d.patterns, func(p compiledPattern) bool { return p.source == expr }) {
		return nil
	}
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidPattern, expr, err)
	}
	re.MatchTimeout = matchTimeout
	d.patterns = append(d.patterns, compiledPattern{source: expr, re: re})
	return nil
}

func normalizeLiteral(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
