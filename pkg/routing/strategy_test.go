package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/llm/mock"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/metrics"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/patterns"
)

func TestParseAnswer(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		tool   core.Tool
		query  string
		ok     bool
	}{
		{"json", `{"tool": "web_search", "query": "latest RAG work"}`, core.ToolWebSearch, "latest RAG work", true},
		{"json in prose", "Sure: {\"tool\": \"glossary\"}", core.ToolGlossary, "", true},
		{"json unknown tool", `{"tool": "calculator"}`, "", "", false},
		{"bare token", "text2sql", core.ToolText2SQL, "", true},
		{"token with punctuation", "`summarize`.", core.ToolSummarize, "", true},
		{"unknown token", "banana", "", "", false},
		{"empty", "   ", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, query, ok := ParseAnswer(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.tool, tool)
			assert.Equal(t, tt.query, query)
		})
	}
}

func TestRoutePatternPipeline(t *testing.T) {
	completer := mock.New()
	r := NewRouter(patterns.Default(), completer)

	s := r.Route(context.Background(), core.NewState("Find papers about RAG and summarize the key findings", core.DifficultyEasy))

	assert.Equal(t, core.ToolSearchPaper, s.ToolChoice)
	assert.Equal(t, []core.Tool{core.ToolSearchPaper, core.ToolWebSearch, core.ToolSummarize}, s.ToolPipeline)
	assert.Equal(t, 0, s.PipelineIndex)
	assert.Equal(t, 0, completer.Calls(Caller))

	events := s.Events(core.EventRoute)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Detail, "pattern:paper_search_summary")
}

func TestRoutePatternSingleTool(t *testing.T) {
	r := NewRouter(patterns.Default(), mock.New())

	s := r.Route(context.Background(), core.NewState("Define tokenization", core.DifficultyEasy))

	assert.Equal(t, core.ToolGlossary, s.ToolChoice)
	assert.Empty(t, s.ToolPipeline)
	assert.False(t, s.InPipeline())
}

func TestRouteContextCueSkipsPatterns(t *testing.T) {
	completer := mock.New().Reply(Caller, `{"tool": "summarize", "query": "Summarize the RAG survey paper"}`)
	r := NewRouter(patterns.Default(), completer)

	s := core.NewState("Summarize that paper", core.DifficultyEasy)
	s.History = []core.Turn{{Question: "Find the RAG survey paper", Answer: "Found: Retrieval-Augmented Generation survey"}}
	s = r.Route(context.Background(), s)

	assert.Equal(t, core.ToolSummarize, s.ToolChoice)
	assert.Equal(t, "Summarize the RAG survey paper", s.Query())
	require.Equal(t, 1, completer.Calls(Caller))
	assert.Contains(t, completer.Requests()[0].Prompt, "Find the RAG survey paper")
}

func TestRouteModelWhenNoPatternMatches(t *testing.T) {
	completer := mock.New().Reply(Caller, "web_search")
	r := NewRouter(patterns.Default(), completer, WithModels(llm.ModelSet{Easy: "small", Hard: "large"}))

	s := r.Route(context.Background(), core.NewState("How should I start learning ML?", core.DifficultyHard))

	assert.Equal(t, core.ToolWebSearch, s.ToolChoice)
	assert.Equal(t, "How should I start learning ML?", s.Query())
	assert.Equal(t, "large", completer.Requests()[0].Model)
}

func TestRouteDegradesToGeneral(t *testing.T) {
	tests := []struct {
		name      string
		completer core.Completer
	}{
		{"model error", mock.New().Fail(Caller, errors.New("timeout"))},
		{"invalid answer", mock.New().Reply(Caller, "banana")},
		{"no model", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, tt.completer)
			s := r.Route(context.Background(), core.NewState("anything at all", core.DifficultyEasy))

			assert.Equal(t, core.AlwaysSucceedTool, s.ToolChoice)
			assert.Contains(t, s.Events(core.EventRoute)[0].Detail, StrategyDefault)
		})
	}
}

func TestRouteAfterValidationRejection(t *testing.T) {
	completer := mock.New().Reply(Caller, "search_paper")
	r := NewRouter(patterns.Default(), completer)

	s := core.NewState("Define tokenization", core.DifficultyEasy)
	s.ValidationFailed = true
	s.RejectedTools = []core.Tool{core.ToolGlossary}
	s = r.Route(context.Background(), s)

	assert.Equal(t, core.ToolSearchPaper, s.ToolChoice)
	assert.False(t, s.ValidationFailed)
	require.Equal(t, 1, completer.Calls(Caller))
	assert.Contains(t, completer.Requests()[0].Prompt, "glossary")
}

func TestRouteDoesNotMutateInput(t *testing.T) {
	r := NewRouter(patterns.Default(), mock.New())

	in := core.NewState("Find papers about RAG and summarize the key findings", core.DifficultyEasy)
	out := r.Route(context.Background(), in)

	assert.Empty(t, in.ToolChoice)
	assert.Empty(t, in.Timeline)
	assert.NotEmpty(t, out.Timeline)
}

func TestRouteRecordsMetrics(t *testing.T) {
	m := metrics.NewPrometheusMetricsWith(prometheus.NewRegistry())
	obs := observability.New(logging.NewNop(), m, nil)
	r := NewRouter(patterns.Default(), mock.New().Reply(Caller, "general"), WithObservability(obs))

	ctx := context.Background()
	r.Route(ctx, core.NewState("Define tokenization", core.DifficultyEasy))
	r.Route(ctx, core.NewState("Tell me a joke", core.DifficultyEasy))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouteDecisionsTotal.WithLabelValues(StrategyPattern)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouteDecisionsTotal.WithLabelValues(StrategyModel)))
}
