package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snow-ghost/assistant/pkg/fallback"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckConfigDefaults(t *testing.T) {
	t.Setenv("FALLBACK_CONFIG", "")
	t.Setenv("PATTERNS_CONFIG", "")
	t.Setenv("LLM_PROVIDER", "openai")

	out, err := run(t, "check-config")

	require.NoError(t, err)
	assert.Contains(t, out, "fallback (defaults)")
	assert.Contains(t, out, "paper_search")
	assert.Contains(t, out, "definition_papers_summary")
}

func TestCheckConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fallback_chain:\n  validation_retries: 9\n"), 0o644))

	_, err := run(t, "check-config", "--fallback", path)

	var cfgErr *fallback.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "validation_retries", cfgErr.Field)
}

func TestAskRejectsUnknownDifficulty(t *testing.T) {
	_, err := run(t, "ask", "--difficulty", "medium", "What is RAG?")
	require.Error(t, err)
}

func TestAskRequiresQuestion(t *testing.T) {
	_, err := run(t, "ask")
	require.Error(t, err)
}

func TestHealthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	out, err := run(t, "healthcheck", "--url", server.URL+"/health")
	require.NoError(t, err)
	assert.Contains(t, out, "Health check passed")

	_, err = run(t, "healthcheck", "--url", server.URL+"/missing")
	require.Error(t, err)
}
