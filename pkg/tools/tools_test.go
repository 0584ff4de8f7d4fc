package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/detector"
	"github.com/snow-ghost/assistant/pkg/limiter"
	"github.com/snow-ghost/assistant/pkg/llm"
	"github.com/snow-ghost/assistant/pkg/llm/mock"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/metrics"
	"github.com/snow-ghost/assistant/pkg/observability"
)

func answering(text string) core.ToolFunc {
	return func(ctx context.Context, s core.State) (core.State, error) {
		return s.WithAnswer(text), nil
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register(core.ToolGlossary, answering("ok")))
	require.ErrorIs(t, reg.Register(core.Tool("calculator"), answering("ok")), core.ErrUnknownTool)
	require.Error(t, reg.Register(core.ToolWebSearch, nil))

	_, err := reg.Get(core.ToolGlossary)
	require.NoError(t, err)

	_, err = reg.Get(core.ToolText2SQL)
	require.ErrorIs(t, err, ErrToolNotRegistered)

	assert.Equal(t, []core.Tool{core.ToolGlossary}, reg.Tools())
	require.ErrorIs(t, reg.Require(core.ToolGlossary, core.ToolSaveFile), ErrToolNotRegistered)
}

func TestWrapSuccess(t *testing.T) {
	w := NewWrapper(detector.New())
	fn := w.Wrap(core.ToolGlossary, answering("RAG combines retrieval with generation."))

	s, err := fn(context.Background(), core.NewState("define RAG", core.DifficultyEasy))

	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, s.ToolStatus)
	assert.Empty(t, s.FailureReason)
	require.Len(t, s.Timeline, 2)
	assert.Equal(t, core.EventToolStart, s.Timeline[0].Kind)
	assert.Equal(t, core.EventToolEnd, s.Timeline[1].Kind)
	assert.Equal(t, core.StatusSuccess, s.Timeline[1].Status)
}

func TestWrapDetectsFailure(t *testing.T) {
	w := NewWrapper(detector.New())
	fn := w.Wrap(core.ToolSearchPaper, answering("No relevant results found."))

	s, err := fn(context.Background(), core.NewState("papers on RAG", core.DifficultyEasy))

	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, s.ToolStatus)
	assert.NotEmpty(t, s.FailureReason)
	assert.Equal(t, s.FailureReason, s.Timeline[1].Reason)
}

func TestWrapConvertsErrorsAndPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   core.ToolFunc
	}{
		{"error", func(ctx context.Context, s core.State) (core.State, error) {
			return s, errors.New("connection refused")
		}},
		{"panic", func(ctx context.Context, s core.State) (core.State, error) {
			panic("index out of range")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWrapper(detector.New())
			s, err := w.Wrap(core.ToolText2SQL, tt.fn)(context.Background(), core.NewState("how many", core.DifficultyEasy))

			require.NoError(t, err)
			assert.Equal(t, core.StatusError, s.ToolStatus)
			assert.NotEmpty(t, s.FailureReason)
			assert.Equal(t, ErrorAnswer(core.ToolText2SQL), s.FinalAnswer)
			assert.Equal(t, core.StatusError, s.Timeline[len(s.Timeline)-1].Status)
		})
	}
}

func TestWrapForcesGeneralSuccess(t *testing.T) {
	w := NewWrapper(detector.New())
	fn := w.Wrap(core.ToolGeneral, answering("No results found, but here is what I know."))

	s, err := fn(context.Background(), core.NewState("anything", core.DifficultyEasy))

	require.NoError(t, err)
	assert.Equal(t, core.StatusSuccess, s.ToolStatus)
	assert.Empty(t, s.FailureReason)
}

func TestWrapJudgesOnlyTheToolsOwnAnswer(t *testing.T) {
	w := NewWrapper(detector.New())
	ctx := context.Background()
	definition := "RAG combines a retriever with a generator."

	s, err := w.Wrap(core.ToolGlossary, answering(definition))(ctx, core.NewState("Define RAG and save it", core.DifficultyEasy))
	require.NoError(t, err)
	require.Equal(t, core.StatusSuccess, s.ToolStatus)

	var seen core.State
	silent := func(ctx context.Context, s core.State) (core.State, error) {
		seen = s
		return s, nil
	}
	s, err = w.Wrap(core.ToolSaveFile, silent)(ctx, s)

	require.NoError(t, err)
	assert.Empty(t, seen.FinalAnswer)
	assert.Equal(t, definition, seen.ToolResult)
	assert.Equal(t, core.StatusFailed, s.ToolStatus)
	assert.Equal(t, detector.EmptyResultReason, s.FailureReason)
	assert.Empty(t, s.FinalAnswer)
	assert.Equal(t, definition, s.ToolResult)
}

func TestWrapToolResultFollowsSuccessfulSteps(t *testing.T) {
	w := NewWrapper(detector.New())
	ctx := context.Background()
	papers := "1. Lewis et al. 2020, Retrieval-Augmented Generation"

	s, err := w.Wrap(core.ToolSearchPaper, answering(papers))(ctx, core.NewState("Find RAG papers", core.DifficultyEasy))
	require.NoError(t, err)
	assert.Equal(t, papers, s.ToolResult)

	// a failed step leaves the earlier payload in place
	s, err = w.Wrap(core.ToolWebSearch, answering("No relevant papers found."))(ctx, s)
	require.NoError(t, err)
	require.Equal(t, core.StatusFailed, s.ToolStatus)
	assert.Equal(t, papers, s.ToolResult)

	s, err = w.Wrap(core.ToolSummarize, answering("The paper pairs a dense retriever with a generator."))(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "The paper pairs a dense retriever with a generator.", s.ToolResult)
}

func TestWrapOpenBreakerSkipsInvocation(t *testing.T) {
	breakers := limiter.NewCircuitBreakerManager(limiter.WithBreakerConfig(func(name string) *limiter.CircuitBreakerConfig {
		cfg := limiter.DefaultCircuitBreakerConfig(name)
		cfg.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 }
		return cfg
	}))
	w := NewWrapper(detector.New(), WithBreakers(breakers))

	calls := 0
	fn := w.Wrap(core.ToolWebSearch, func(ctx context.Context, s core.State) (core.State, error) {
		calls++
		return s, errors.New("upstream down")
	})

	ctx := context.Background()
	s, _ := fn(ctx, core.NewState("latest news", core.DifficultyEasy))
	assert.Equal(t, core.StatusError, s.ToolStatus)
	assert.True(t, w.Breakers().IsOpen(core.ToolWebSearch.String()))

	s, _ = fn(ctx, core.NewState("latest news", core.DifficultyEasy))
	assert.Equal(t, core.StatusError, s.ToolStatus)
	assert.Contains(t, s.FailureReason, "circuit breaker")
	assert.Equal(t, 1, calls)
}

func TestWrapDetectedFailuresDoNotTripBreaker(t *testing.T) {
	w := NewWrapper(detector.New())
	fn := w.Wrap(core.ToolGlossary, answering("Term not found."))

	for i := 0; i < 10; i++ {
		s, _ := fn(context.Background(), core.NewState("define x", core.DifficultyEasy))
		assert.Equal(t, core.StatusFailed, s.ToolStatus)
	}
	assert.True(t, w.Breakers().IsClosed(core.ToolGlossary.String()))
}

func TestWrapRecordsMetrics(t *testing.T) {
	m := metrics.NewPrometheusMetricsWith(prometheus.NewRegistry())
	w := NewWrapper(detector.New(), WithObservability(observability.New(logging.NewNop(), m, nil)))

	ctx := context.Background()
	_, _ = w.Wrap(core.ToolGlossary, answering("A definition."))(ctx, core.NewState("q", core.DifficultyEasy))
	_, _ = w.Wrap(core.ToolGlossary, answering("could not find it"))(ctx, core.NewState("q", core.DifficultyEasy))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("glossary", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("glossary", "failed")))
}

func TestGeneralTool(t *testing.T) {
	completer := mock.New().Reply(GeneralCaller, "  RAG retrieves documents before generating.  ")
	fn := NewGeneralTool(completer, llm.ModelSet{Easy: "small", Hard: "large"})

	s := core.NewState("What is RAG?", core.DifficultyHard)
	s.ToolResult = "glossary: Retrieval-Augmented Generation"
	s, err := fn(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, "RAG retrieves documents before generating.", s.FinalAnswer)

	req := completer.Requests()[0]
	assert.Equal(t, "large", req.Model)
	assert.Contains(t, req.Prompt, "Earlier results")
}

func TestGeneralToolError(t *testing.T) {
	fn := NewGeneralTool(mock.New().Fail(GeneralCaller, errors.New("quota")), llm.DefaultModels())

	_, err := fn(context.Background(), core.NewState("What is RAG?", core.DifficultyEasy))
	require.Error(t, err)
}

func TestUnavailableFailsDetection(t *testing.T) {
	w := NewWrapper(detector.New())
	s, _ := w.Wrap(core.ToolSummarize, Unavailable(core.ToolSummarize))(context.Background(), core.NewState("q", core.DifficultyEasy))
	assert.Equal(t, core.StatusFailed, s.ToolStatus)
}

func TestRemoteTool(t *testing.T) {
	var got RemoteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/search_paper", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(RemoteResponse{Answer: "1. Lewis et al. 2020, Retrieval-Augmented Generation"})
	}))
	defer server.Close()

	remote, err := NewRemote(RemoteConfig{BaseURL: server.URL})
	require.NoError(t, err)

	s := core.NewState("Find RAG papers", core.DifficultyEasy)
	s.RewrittenQuery = "Find papers on retrieval augmented generation"
	s, err = remote.Func(core.ToolSearchPaper)(context.Background(), s)

	require.NoError(t, err)
	assert.Equal(t, "Find papers on retrieval augmented generation", got.Query)
	assert.Contains(t, s.FinalAnswer, "Lewis")
	assert.Equal(t, s.FinalAnswer, s.ToolResult)
}

func TestRemoteToolHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	remote, err := NewRemote(RemoteConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = remote.Func(core.ToolWebSearch)(context.Background(), core.NewState("q", core.DifficultyEasy))

	var httpErr *limiter.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestNewRemoteRejectsBadURL(t *testing.T) {
	_, err := NewRemote(RemoteConfig{BaseURL: "not a url"})
	require.Error(t, err)
}

func TestRegisterDefaults(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterDefaults(reg, answering("general answer"), nil))

	require.NoError(t, reg.Require(core.Tools()...))
	fn, err := reg.Get(core.ToolGlossary)
	require.NoError(t, err)

	s, err := fn(context.Background(), core.NewState("q", core.DifficultyEasy))
	require.NoError(t, err)
	assert.Contains(t, s.FinalAnswer, "not configured")
}
