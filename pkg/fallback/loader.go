package fallback

import (
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/assistant/core"
)

// ErrMalformed marks input that is not a usable YAML document. Resolvers
// answer it with the defaults instead of failing.
var ErrMalformed = errors.New("malformed fallback config")

const rootKey = "fallback_chain"

//go:embed default_fallback.yaml
var defaultYAML []byte

var defaults = sync.OnceValue(func() *Config {
	cfg, err := Parse(defaultYAML, nil)
	if err != nil {
		panic(fmt.Sprintf("embedded fallback defaults: %v", err))
	}
	cfg.Source = SourceDefaults
	return cfg
})

// Defaults returns a copy of the built-in configuration.
func Defaults() *Config {
	return defaults().Clone()
}

// rawConfig holds one file's overrides; nil means "not set".
type rawConfig struct {
	Enabled           *bool               `yaml:"enabled"`
	MaxRetries        *int                `yaml:"max_retries" validate:"omitnil,min=1,max=10"`
	ValidationEnabled *bool               `yaml:"validation_enabled"`
	ValidationRetries *int                `yaml:"validation_retries" validate:"omitnil,min=1,max=5"`
	Priorities        map[string][]string `yaml:"priorities"`

	unknown []string
}

// limits applies to the merged result
type limits struct {
	MaxRetries        int `yaml:"max_retries" validate:"min=1,max=10"`
	ValidationRetries int `yaml:"validation_retries" validate:"min=1,max=5"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse reads a fallback document and merges it over base: scalars key by
// key, priorities per question type. A nil base means the document must be
// complete on its own.
func Parse(data []byte, base *Config) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	section, err := sectionNode(&doc)
	if err != nil {
		return nil, err
	}

	raw, err := decodeRaw(section)
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(raw); err != nil {
		return nil, toConfigError(err)
	}

	cfg := &Config{Priorities: map[core.QuestionType][]core.Tool{}}
	if base != nil {
		cfg = base.Clone()
	}
	cfg.Warnings = nil
	for _, key := range raw.unknown {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("unknown key %q ignored", key))
	}

	if err := merge(cfg, raw); err != nil {
		return nil, err
	}
	if err := check(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func sectionNode(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrMalformed)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping", ErrMalformed)
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != rootKey {
			continue
		}
		section := root.Content[i+1]
		switch {
		case section.Kind == yaml.MappingNode:
			return section, nil
		case section.Kind == yaml.ScalarNode && section.Tag == "!!null":
			return &yaml.Node{Kind: yaml.MappingNode}, nil
		default:
			return nil, fmt.Errorf("%w: %s must be a mapping", ErrMalformed, rootKey)
		}
	}
	return nil, fmt.Errorf("%w: missing %s section", ErrMalformed, rootKey)
}

func decodeRaw(section *yaml.Node) (*rawConfig, error) {
	raw := &rawConfig{}
	for i := 0; i+1 < len(section.Content); i += 2 {
		key, val := section.Content[i].Value, section.Content[i+1]

		var target any
		switch key {
		case "enabled":
			target = &raw.Enabled
		case "max_retries":
			target = &raw.MaxRetries
		case "validation_enabled":
			target = &raw.ValidationEnabled
		case "validation_retries":
			target = &raw.ValidationRetries
		case "priorities":
			target = &raw.Priorities
		default:
			raw.unknown = append(raw.unknown, key)
			continue
		}

		if err := val.Decode(target); err != nil {
			return nil, &ConfigError{
				Field:  key,
				Value:  nodeValue(val),
				Reason: fmt.Sprintf("wrong type (line %d)", val.Line),
				Err:    err,
			}
		}
	}
	return raw, nil
}

func nodeValue(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "<mapping>"
	case yaml.SequenceNode:
		return "<sequence>"
	default:
		return n.Value
	}
}

func merge(cfg *Config, raw *rawConfig) error {
	if raw.Enabled != nil {
		cfg.Enabled = *raw.Enabled
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.ValidationEnabled != nil {
		cfg.ValidationEnabled = *raw.ValidationEnabled
	}
	if raw.ValidationRetries != nil {
		cfg.ValidationRetries = *raw.ValidationRetries
	}

	names := make([]string, 0, len(raw.Priorities))
	for name := range raw.Priorities {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		qt, err := core.ParseQuestionType(name)
		if err != nil {
			return &ConfigError{Field: "priorities", Value: name, Reason: "unknown question type", Err: err}
		}
		chain, err := parseChain("priorities."+name, raw.Priorities[name])
		if err != nil {
			return err
		}
		cfg.Priorities[qt] = chain
	}
	return nil
}

func parseChain(field string, names []string) ([]core.Tool, error) {
	if len(names) == 0 {
		return nil, &ConfigError{Field: field, Value: names, Reason: "chain must not be empty"}
	}
	chain := make([]core.Tool, 0, len(names))
	for i, name := range names {
		t, err := core.ParseTool(name)
		if err != nil {
			return nil, &ConfigError{Field: fmt.Sprintf("%s[%d]", field, i), Value: name, Reason: "unknown tool", Err: err}
		}
		chain = append(chain, t)
	}
	return chain, nil
}

// check validates the merged result and records convention warnings.
func check(cfg *Config) error {
	if err := validate.Struct(limits{MaxRetries: cfg.MaxRetries, ValidationRetries: cfg.ValidationRetries}); err != nil {
		return toConfigError(err)
	}
	if len(cfg.Priorities[core.QuestionGeneral]) == 0 {
		return &ConfigError{
			Field:  "priorities." + string(core.QuestionGeneral),
			Value:  nil,
			Reason: "chain is required as the last-resort chain",
		}
	}

	for _, qt := range cfg.QuestionTypes() {
		chain := cfg.Priorities[qt]
		if qt == core.QuestionFileSave || qt == core.QuestionGeneral {
			continue
		}
		if chain[len(chain)-1] != core.AlwaysSucceedTool {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf(
				"chain for %s should end with %s, got %v", qt, core.AlwaysSucceedTool, chain))
		}
		if dup := firstDuplicate(chain); dup != "" {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("chain for %s lists %s more than once", qt, dup))
		}
	}
	return nil
}

func firstDuplicate(chain []core.Tool) core.Tool {
	for i, t := range chain {
		if slices.Contains(chain[:i], t) {
			return t
		}
	}
	return ""
}

func toConfigError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ConfigError{Field: fe.Field(), Value: fe.Value(), Reason: rangeReason(fe), Err: verrs}
	}
	return &ConfigError{Field: rootKey, Reason: err.Error(), Err: err}
}

func rangeReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
