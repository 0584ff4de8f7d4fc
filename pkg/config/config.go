// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/orchestrator"
)

// LLM providers
const (
	ProviderOpenAI = "openai"
	ProviderRouter = "router"
)

// Config holds configuration for the assistant process
type Config struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json console"`

	FallbackConfig string
	FallbackWatch  bool
	PatternsConfig string

	LLMProvider  string `validate:"oneof=openai router"`
	LLMBaseURL   string `validate:"omitempty,url"`
	OpenAIAPIKey string
	Models       llm.ModelSet
	LLMMaxRPM    int `validate:"min=1"`

	ToolEndpoint string `validate:"omitempty,url"`
	ToolTimeout  time.Duration

	JaegerEndpoint      string `validate:"omitempty,url"`
	ClassifierCacheSize int    `validate:"min=1"`

	MinSQLChars int `validate:"min=0"`
	MinWebChars int `validate:"min=0"`
}

// Load reads configuration from environment variables
func Load() *Config {
	defaults := llm.DefaultModels()
	skip := orchestrator.DefaultSkipRules()

	return &Config{
		Port:      getEnv("ASSISTANT_PORT", "8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),

		FallbackConfig: getEnv("FALLBACK_CONFIG", ""),
		FallbackWatch:  getEnvBool("FALLBACK_WATCH", false),
		PatternsConfig: getEnv("PATTERNS_CONFIG", ""),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		LLMBaseURL:   getEnv("LLM_BASE_URL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		Models: llm.ModelSet{
			Easy: getEnv("LLM_MODEL_EASY", defaults.Easy),
			Hard: getEnv("LLM_MODEL_HARD", defaults.Hard),
		},
		LLMMaxRPM: getEnvInt("LLM_MAX_RPM", 600),

		ToolEndpoint: getEnv("TOOL_ENDPOINT", ""),
		ToolTimeout:  getEnvDuration("TOOL_TIMEOUT", "30s"),

		JaegerEndpoint:      getEnv("JAEGER_ENDPOINT", ""),
		ClassifierCacheSize: getEnvInt("CLASSIFIER_CACHE_SIZE", 10000),

		MinSQLChars: getEnvInt("SKIP_MIN_SQL_CHARS", skip.MinSQLChars),
		MinWebChars: getEnvInt("SKIP_MIN_WEB_CHARS", skip.MinWebChars),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value ranges and provider requirements
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.LLMProvider == ProviderRouter && c.LLMBaseURL == "" {
		return fmt.Errorf("invalid configuration: LLM_BASE_URL is required for the %s provider", ProviderRouter)
	}
	return nil
}

// SkipRules returns the skip-rule thresholds with the configured lengths
func (c *Config) SkipRules() orchestrator.SkipRules {
	r := orchestrator.DefaultSkipRules()
	r.MinSQLChars = c.MinSQLChars
	r.MinWebChars = c.MinWebChars
	return r
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
