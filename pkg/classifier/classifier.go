// Package classifier maps questions to one of the fixed question types.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/cache"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// Caller identifies classifier requests to the model collaborator.
const Caller = "classifier"

const systemPrompt = `You classify questions for a research assistant.
Answer with exactly one category name from the list and nothing else.

term_definition: the user asks what a term or concept means. Example: "What is an LLM?"
paper_search: the user wants papers or articles on a topic. Example: "Find papers about retrieval augmented generation"
latest_research: the user asks about recent news or trends. Example: "What are the latest developments in AI agents?"
paper_summary: the user wants a paper summarized. Example: "Summarize the Attention Is All You Need paper"
statistics: the user wants numbers or aggregates from the database. Example: "How many papers were published in 2023?"
file_save: the user wants results saved or exported to a file. Example: "Save these results to a file"
general_question: anything else. Example: "How should I start learning machine learning?"`

// Classifier caches one category per exact question string.
// Safe for concurrent use.
type Classifier struct {
	llm    core.Completer
	models llm.ModelSet
	store  *cache.Store[string, core.QuestionType]
	dedup  *cache.Deduplicator[core.QuestionType]
	obs    *observability.Manager
	logger *logging.Logger

	cacheSize int
}

// Option configures a Classifier
type Option func(*Classifier)

// WithModels sets the models used per difficulty
func WithModels(m llm.ModelSet) Option {
	return func(c *Classifier) {
		c.models = m
	}
}

// WithCacheSize bounds the result cache
func WithCacheSize(n int) Option {
	return func(c *Classifier) {
		c.cacheSize = n
	}
}

// WithObservability sets logging, metrics and tracing
func WithObservability(m *observability.Manager) Option {
	return func(c *Classifier) {
		c.obs = m
	}
}

// New creates a classifier backed by completer
func New(completer core.Completer, opts ...Option) (*Classifier, error) {
	c := &Classifier{
		llm:       completer,
		models:    llm.DefaultModels(),
		dedup:     cache.NewDeduplicator[core.QuestionType](),
		cacheSize: cache.DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(c)
	}

	store, err := cache.NewStore[string, core.QuestionType](cache.Config{MaxSize: c.cacheSize})
	if err != nil {
		return nil, fmt.Errorf("classifier cache: %w", err)
	}
	c.store = store
	c.obs = observability.OrNop(c.obs)
	c.logger = c.obs.Component("classifier")

	return c, nil
}

// Classify returns the question type. It never fails: model errors and
// unrecognized answers degrade to general_question. Only successful model
// answers are cached.
func (c *Classifier) Classify(ctx context.Context, question string, difficulty core.Difficulty) core.QuestionType {
	ctx, span := c.obs.GetTracer().StartClassifySpan(ctx, string(difficulty))
	defer span.End()

	start := time.Now()
	qt, cached, err := c.dedup.ExecuteWithCache(ctx, question, c.store, func(ctx context.Context) (core.QuestionType, error) {
		return c.ask(ctx, question, difficulty)
	})
	tracing.RecordSpanDuration(span, time.Since(start))

	if err != nil {
		tracing.RecordSpanError(span, err)
		c.logger.Warn("Classification failed, using general_question",
			"error", err.Error(),
		)
		qt = core.QuestionGeneral
	} else {
		tracing.RecordSpanSuccess(span)
	}

	tracing.AddSpanAttributes(span, map[string]interface{}{
		"question.type":   string(qt),
		"classify.cached": cached,
	})
	c.logger.LogClassification(ctx, string(qt), cached)
	c.obs.GetMetrics().RecordClassification(string(qt), cached)

	return qt
}

func (c *Classifier) ask(ctx context.Context, question string, difficulty core.Difficulty) (core.QuestionType, error) {
	answer, err := c.llm.Complete(ctx, core.CompletionRequest{
		Model:       c.models.For(difficulty),
		System:      systemPrompt,
		Prompt:      "Question: " + question + "\nCategory:",
		Temperature: 0,
		MaxTokens:   10,
		Caller:      Caller,
	})
	if err != nil {
		return "", err
	}
	return ParseAnswer(answer), nil
}

// ParseAnswer takes the first token of a model answer as the category.
// Anything unrecognized becomes general_question.
func ParseAnswer(answer string) core.QuestionType {
	fields := strings.Fields(answer)
	if len(fields) == 0 {
		return core.QuestionGeneral
	}
	token := strings.Trim(fields[0], "\"'`.,:;*[](){}")
	qt, err := core.ParseQuestionType(token)
	if err != nil {
		return core.QuestionGeneral
	}
	return qt
}

// ClearCache drops every cached classification
func (c *Classifier) ClearCache() {
	c.store.Clear()
	c.logger.Info("Classifier cache cleared")
}

// CacheStats returns cache statistics
func (c *Classifier) CacheStats() cache.Stats {
	return c.store.Stats()
}
