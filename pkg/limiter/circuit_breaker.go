package limiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Name        string                             `json:"name"`
	MaxRequests uint32                             `json:"max_requests"`
	Interval    time.Duration                      `json:"interval"`
	Timeout     time.Duration                      `json:"timeout"`
	ReadyToTrip func(counts gobreaker.Counts) bool `json:"-"`
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Open circuit if failure rate is >= 50% and we have at least 5 requests
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	}
}

// StateChangeFunc observes breaker transitions
type StateChangeFunc func(name string, from, to gobreaker.State)

// BreakerOption configures a CircuitBreakerManager
type BreakerOption func(*CircuitBreakerManager)

// WithBreakerConfig overrides the per-name configuration
func WithBreakerConfig(fn func(name string) *CircuitBreakerConfig) BreakerOption {
	return func(cbm *CircuitBreakerManager) {
		cbm.configFor = fn
	}
}

// WithStateChange registers a transition observer
func WithStateChange(fn StateChangeFunc) BreakerOption {
	return func(cbm *CircuitBreakerManager) {
		cbm.onStateChange = fn
	}
}

// CircuitBreakerManager manages one circuit breaker per name (a tool or a model)
type CircuitBreakerManager struct {
	breakers      map[string]*gobreaker.CircuitBreaker
	configFor     func(name string) *CircuitBreakerConfig
	onStateChange StateChangeFunc
	mu            sync.Mutex
}

// NewCircuitBreakerManager creates a new circuit breaker manager
func NewCircuitBreakerManager(opts ...BreakerOption) *CircuitBreakerManager {
	cbm := &CircuitBreakerManager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		configFor: DefaultCircuitBreakerConfig,
	}
	for _, opt := range opts {
		opt(cbm)
	}
	return cbm
}

// GetBreaker returns or creates the circuit breaker for name
func (cbm *CircuitBreakerManager) GetBreaker(name string) *gobreaker.CircuitBreaker {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()

	if breaker, exists := cbm.breakers[name]; exists {
		return breaker
	}

	cfg := cbm.configFor(name)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if cbm.onStateChange != nil {
		settings.OnStateChange = cbm.onStateChange
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	cbm.breakers[name] = breaker
	return breaker
}

// Execute executes a function through the circuit breaker. An open breaker
// yields an error wrapping gobreaker.ErrOpenState without calling fn.
func (cbm *CircuitBreakerManager) Execute(ctx context.Context, name string, fn func() (interface{}, error)) (interface{}, error) {
	breaker := cbm.GetBreaker(name)

	result, err := breaker.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("circuit breaker %s: %w", name, err)
	}
	return result, nil
}

// GetState returns the current state of a circuit breaker
func (cbm *CircuitBreakerManager) GetState(name string) gobreaker.State {
	return cbm.GetBreaker(name).State()
}

// GetStats returns circuit breaker statistics for name
func (cbm *CircuitBreakerManager) GetStats(name string) map[string]interface{} {
	breaker := cbm.GetBreaker(name)
	counts := breaker.Counts()

	return map[string]interface{}{
		"name":                 name,
		"state":                breaker.State().String(),
		"requests":             counts.Requests,
		"total_success":        counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_success":  counts.ConsecutiveSuccesses,
		"consecutive_failures": counts.ConsecutiveFailures,
	}
}

// Reset drops the breaker for name; the next use starts closed
func (cbm *CircuitBreakerManager) Reset(name string) {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	delete(cbm.breakers, name)
}

// ResetAll resets all circuit breakers
func (cbm *CircuitBreakerManager) ResetAll() {
	cbm.mu.Lock()
	defer cbm.mu.Unlock()
	cbm.breakers = make(map[string]*gobreaker.CircuitBreaker)
}

// IsOpen checks if the circuit breaker is open for name
func (cbm *CircuitBreakerManager) IsOpen(name string) bool {
	return cbm.GetState(name) == gobreaker.StateOpen
}

// IsClosed checks if the circuit breaker is closed for name
func (cbm *CircuitBreakerManager) IsClosed(name string) bool {
	return cbm.GetState(name) == gobreaker.StateClosed
}
