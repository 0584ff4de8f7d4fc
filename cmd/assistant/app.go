package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/classifier"
	"github.com/snow-ghost/assistant/pkg/config"
	"github.com/snow-ghost/assistant/pkg/detector"
	"github.com/snow-ghost/assistant/pkg/fallback"
	"github.com/snow-ghost/assistant/pkg/limiter"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/orchestrator"
	"github.com/snow-ghost/assistant/pkg/patterns"
	"github.com/snow-ghost/assistant/pkg/routing"
	"github.com/snow-ghost/assistant/pkg/tools"
	"github.com/snow-ghost/assistant/pkg/validation"
)

// app is the assembled process
type app struct {
	cfg          *config.Config
	obs          *observability.Manager
	resolver     *fallback.Resolver
	detector     *detector.Detector
	classifier   *classifier.Classifier
	orchestrator *orchestrator.Orchestrator
}

func newApp(cfg *config.Config, obs *observability.Manager) (*app, error) {
	logger := obs.GetLogger()

	resolver := fallback.NewResolver(cfg.FallbackConfig, fallback.WithLogger(obs.Component("fallback")))
	if _, err := resolver.Load(false); err != nil {
		return nil, err
	}

	set, err := patterns.Load(cfg.PatternsConfig, obs.Component("patterns"))
	if err != nil {
		return nil, err
	}

	completer, err := newCompleter(cfg, obs)
	if err != nil {
		return nil, err
	}

	cls, err := classifier.New(completer,
		classifier.WithModels(cfg.Models),
		classifier.WithCacheSize(cfg.ClassifierCacheSize),
		classifier.WithObservability(obs),
	)
	if err != nil {
		return nil, err
	}

	router := routing.NewRouter(set, completer,
		routing.WithModels(cfg.Models),
		routing.WithObservability(obs),
	)
	validator := validation.New(validation.NewLLMChecker(completer, cfg.Models), obs)

	det := detector.New()
	breakerLog := obs.Component("tools")
	breakers := limiter.NewCircuitBreakerManager(limiter.WithStateChange(func(name string, from, to gobreaker.State) {
		breakerLog.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
		obs.GetMetrics().RecordCircuitState(name, to.String())
	}))
	wrapper := tools.NewWrapper(det, tools.WithBreakers(breakers), tools.WithObservability(obs))

	var remote *tools.Remote
	if cfg.ToolEndpoint != "" {
		remote, err = tools.NewRemote(tools.RemoteConfig{BaseURL: cfg.ToolEndpoint, Timeout: cfg.ToolTimeout})
		if err != nil {
			return nil, fmt.Errorf("tool endpoint: %w", err)
		}
	} else {
		logger.Warn("TOOL_ENDPOINT not set, only the general tool can answer")
	}

	reg := tools.NewRegistry()
	if err := tools.RegisterDefaults(reg, tools.NewGeneralTool(completer, cfg.Models), remote); err != nil {
		return nil, err
	}

	orch, err := orchestrator.New(cls, resolver, router, reg, wrapper,
		orchestrator.WithValidator(validator),
		orchestrator.WithSkipRules(cfg.SkipRules()),
		orchestrator.WithObservability(obs),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:          cfg,
		obs:          obs,
		resolver:     resolver,
		detector:     det,
		classifier:   cls,
		orchestrator: orch,
	}, nil
}

func newCompleter(cfg *config.Config, obs *observability.Manager) (core.Completer, error) {
	var next core.Completer
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the %s provider", config.ProviderOpenAI)
		}
		next = llm.NewOpenAICompleter(cfg.LLMBaseURL, cfg.OpenAIAPIKey)
	case config.ProviderRouter:
		next = llm.NewClient(llm.Config{
			BaseURL:      cfg.LLMBaseURL,
			DefaultModel: cfg.Models.Easy,
		})
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	logger := obs.Component("llm")
	retry := limiter.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying model call",
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)
	}
	protection := limiter.NewProtectionManager(limiter.ProtectionConfig{
		MaxRPM: cfg.LLMMaxRPM,
		Retry:  retry,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.LogCircuitBreaker(context.Background(), name, from.String(), to.String())
			obs.GetMetrics().RecordCircuitState(name, to.String())
		},
	})

	return llm.NewProtectedCompleter(next, cfg.LLMProvider,
		llm.WithProtection(protection),
		llm.WithObservability(obs),
	), nil
}

func newObservability(cfg *config.Config) (*observability.Manager, error) {
	return observability.NewManager(observability.Config{
		ServiceName:    "assistant",
		ServiceVersion: version,
		JaegerEndpoint: cfg.JaegerEndpoint,
		LogLevel:       cfg.LogLevel,
		LogFormat:      cfg.LogFormat,
	})
}
