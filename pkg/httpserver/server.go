// Package httpserver exposes the assistant over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snow-ghost/assistant/core"
	"github.com/snow-ghost/assistant/pkg/cache"
	"github.com/snow-ghost/assistant/pkg/detector"
	"github.com/snow-ghost/assistant/pkg/fallback"
	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/observability"
	"github.com/snow-ghost/assistant/pkg/orchestrator"
	"github.com/snow-ghost/assistant/pkg/streaming"
)

// Runner answers one request
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) core.State
}

// FallbackSource exposes and reloads the fallback configuration
type FallbackSource interface {
	Config() *fallback.Config
	Reload() (*fallback.Config, error)
}

// ClassifierCache is the admin surface of the classifier cache
type ClassifierCache interface {
	ClearCache()
	CacheStats() cache.Stats
}

// Deps are the components served by the API
type Deps struct {
	Runner     Runner
	Fallback   FallbackSource
	Detector   *detector.Detector
	Classifier ClassifierCache
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
}

// AskRequest is the body of /v1/ask and /v1/ask/stream
type AskRequest struct {
	Question   string      `json:"question" validate:"required"`
	Difficulty string      `json:"difficulty" validate:"omitempty,oneof=easy hard"`
	History    []core.Turn `json:"history,omitempty" validate:"dive"`
}

// PatternRequest adds or removes one failure rule. Exactly one field is set.
type PatternRequest struct {
	Literal string `json:"literal" validate:"required_without=Pattern,excluded_with=Pattern"`
	Pattern string `json:"pattern" validate:"required_without=Literal,excluded_with=Literal"`
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Server represents the HTTP server
type Server struct {
	port     string
	deps     Deps
	obs      *observability.Manager
	logger   *logging.Logger
	validate *validator.Validate
	router   *http.ServeMux
	server   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(port string, deps Deps, obs *observability.Manager) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("httpserver: runner is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	obs = observability.OrNop(obs)

	s := &Server{
		port:     port,
		deps:     deps,
		obs:      obs,
		logger:   obs.Component("httpserver"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   http.NewServeMux(),
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	v1 := http.NewServeMux()
	v1.HandleFunc("/ask", s.handleAsk)
	v1.HandleFunc("/ask/stream", s.handleAskStream)
	v1.HandleFunc("/fallback", s.handleFallback)
	v1.HandleFunc("/fallback/reload", s.handleFallbackReload)
	v1.HandleFunc("/detector/patterns", s.handlePatterns)
	v1.HandleFunc("/classifier/cache", s.handleClassifierCache)

	s.router.Handle("/v1/", http.StripPrefix("/v1", v1))
}

// Handler returns the root handler with request logging
func (s *Server) Handler() http.Handler {
	return s.withRequestLog(s.router)
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = observability.NewRequestID()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		s.logger.LogRequest(ctx, r.Method, r.URL.Path, rec.status, time.Since(start), requestID)
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "assistant",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleAsk runs one request and returns the final state
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}

	state := s.deps.Runner.Run(r.Context(), req)
	s.writeJSON(w, http.StatusOK, state)
}

// handleAskStream runs one request and streams its timeline over SSE
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}

	sse, err := streaming.NewSSEWriter(w)
	if err != nil {
		s.logger.Error("Failed to create SSE writer", "error", err.Error())
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	if err := sse.WriteStart(streaming.StartData{
		RequestID:  observability.GetRequestIDFromContext(r.Context()),
		Question:   req.Question,
		Difficulty: req.Difficulty,
	}); err != nil {
		s.logger.Warn("Client went away before the run started", "error", err.Error())
		return
	}

	req.Observer = sse.Observer()
	state := s.deps.Runner.Run(r.Context(), req)
	if err := sse.WriteDone(state); err != nil {
		s.logger.Warn("Failed to write final state", "error", err.Error())
	}
}

func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request) (orchestrator.Request, bool) {
	var body AskRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
		return orchestrator.Request{}, false
	}
	if err := s.validate.Struct(body); err != nil {
		s.writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
		return orchestrator.Request{}, false
	}

	difficulty, err := core.ParseDifficulty(body.Difficulty)
	if err != nil {
		s.writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest)
		return orchestrator.Request{}, false
	}

	return orchestrator.Request{
		Question:   body.Question,
		Difficulty: difficulty,
		History:    body.History,
	}, true
}

// handleFallback returns the active fallback configuration
func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Fallback == nil {
		s.writeError(w, "Fallback configuration not available", "FALLBACK_DISABLED", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, s.deps.Fallback.Config())
}

// handleFallbackReload re-reads the fallback file. An invalid file keeps the
// previous configuration and is reported with its field.
func (s *Server) handleFallbackReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Fallback == nil {
		s.writeError(w, "Fallback configuration not available", "FALLBACK_DISABLED", http.StatusServiceUnavailable)
		return
	}

	cfg, err := s.deps.Fallback.Reload()
	if err != nil {
		var cfgErr *fallback.ConfigError
		if errors.As(err, &cfgErr) {
			s.writeError(w, cfgErr.Error(), "INVALID_CONFIG", http.StatusUnprocessableEntity)
			return
		}
		s.writeError(w, err.Error(), "RELOAD_FAILED", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Fallback configuration reloaded via API", "source", cfg.Source)
	s.writeJSON(w, http.StatusOK, cfg)
}

// handlePatterns lists, adds and removes failure-detection rules
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Detector == nil {
		s.writeError(w, "Detector not available", "DETECTOR_DISABLED", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.deps.Detector.Patterns())

	case http.MethodPost:
		req, ok := s.decodePattern(w, r)
		if !ok {
			return
		}
		if req.Literal != "" {
			s.deps.Detector.AddLiteral(req.Literal)
		} else if err := s.deps.Detector.AddPattern(req.Pattern); err != nil {
			s.writeError(w, err.Error(), "INVALID_PATTERN", http.StatusBadRequest)
			return
		}
		s.writeJSON(w, http.StatusCreated, s.deps.Detector.Patterns())

	case http.MethodDelete:
		req, ok := s.decodePattern(w, r)
		if !ok {
			return
		}
		var removed bool
		if req.Literal != "" {
			removed = s.deps.Detector.RemoveLiteral(req.Literal)
		} else {
			removed = s.deps.Detector.RemovePattern(req.Pattern)
		}
		if !removed {
			s.writeError(w, "Rule not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		s.writeJSON(w, http.StatusOK, s.deps.Detector.Patterns())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) decodePattern(w http.ResponseWriter, r *http.Request) (PatternRequest, bool) {
	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid JSON", "INVALID_JSON", http.StatusBadRequest)
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, "exactly one of literal or pattern is required", "INVALID_REQUEST", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// handleClassifierCache reports or clears the classification cache
func (s *Server) handleClassifierCache(w http.ResponseWriter, r *http.Request) {
	if s.deps.Classifier == nil {
		s.writeError(w, "Classifier cache not available", "CACHE_DISABLED", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.deps.Classifier.CacheStats())
	case http.MethodDelete:
		s.deps.Classifier.ClearCache()
		s.logger.Info("Classifier cache cleared via API")
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to encode response", "error", err.Error())
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message, code string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// Addr is the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf(":%s", s.port)
}
