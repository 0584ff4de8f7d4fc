package observability

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/snow-ghost/assistant/pkg/logging"
	"github.com/snow-ghost/assistant/pkg/metrics"
	"github.com/snow-ghost/assistant/pkg/tracing"
)

// Manager manages all observability components
type Manager struct {
	metrics *metrics.PrometheusMetrics
	tracer  *tracing.Tracer
	logger  *logging.Logger
}

// Config holds observability configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	JaegerEndpoint string // empty disables tracing export
	LogLevel       string
	LogFormat      string
	Registerer     prometheus.Registerer
}

// NewManager creates a new observability manager
func NewManager(config Config) (*Manager, error) {
	reg := config.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	var tracer *tracing.Tracer
	if config.JaegerEndpoint != "" {
		var err error
		tracer, err = tracing.NewTracer(tracing.Config{
			ServiceName:    config.ServiceName,
			ServiceVersion: config.ServiceVersion,
			JaegerEndpoint: config.JaegerEndpoint,
			Environment:    config.Environment,
		})
		if err != nil {
			return nil, err
		}
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:     config.LogLevel,
		Format:    config.LogFormat,
		Output:    "stdout",
		AddCaller: true,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		metrics: metrics.NewPrometheusMetricsWith(reg),
		tracer:  tracer,
		logger:  logger.WithFields(map[string]interface{}{"service": config.ServiceName}),
	}, nil
}

// New bundles already constructed components. Any of them may be nil.
func New(logger *logging.Logger, m *metrics.PrometheusMetrics, tracer *tracing.Tracer) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{metrics: m, tracer: tracer, logger: logger}
}

// NewNop returns a manager that logs nowhere, records no metrics and starts no-op spans
func NewNop() *Manager {
	return New(nil, nil, nil)
}

// OrNop returns m, or a no-op manager when m is nil
func OrNop(m *Manager) *Manager {
	if m == nil {
		return NewNop()
	}
	return m
}

// GetMetrics returns the metrics instance
func (m *Manager) GetMetrics() *metrics.PrometheusMetrics {
	return m.metrics
}

// GetTracer returns the tracer instance
func (m *Manager) GetTracer() *tracing.Tracer {
	return m.tracer
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() *logging.Logger {
	return m.logger
}

// Component returns a logger tagged with the component name
func (m *Manager) Component(name string) *logging.Logger {
	return m.logger.WithComponent(name)
}

// Shutdown shuts down all observability components
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.tracer.Shutdown(ctx); err != nil {
		return err
	}
	// stdout sync errors are expected on some platforms
	_ = m.logger.Sync()
	return nil
}

type contextKey string

const requestIDKey contextKey = "request_id"

// NewRequestID returns a fresh request identifier
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestIDFromContext extracts request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// EnsureRequestID returns ctx carrying a request ID, generating one if absent
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id := GetRequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}
