package limiter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"time"
)

// ErrRetriesExhausted wraps the last error once every attempt was spent on
// retryable failures.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryConfig controls how often and how patiently a call is repeated
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Jitter spreads each delay by up to a quarter in either direction.
	Jitter bool
	// RetryableStatus lists the HTTP status codes worth another attempt.
	RetryableStatus []int
	// OnRetry is called before each wait, with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig retries throttling and upstream gateway failures of
// model and tool backends.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:    3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetryableStatus: []int{
			429, // rate limited
			500, 502, 503, 504,
		},
	}
}

// RetryableFunc is one attempt of a protected call
type RetryableFunc func(ctx context.Context) (interface{}, error)

// RetryManager repeats calls that fail with a retryable HTTPError
type RetryManager struct {
	config *RetryConfig
}

// NewRetryManager creates a retry manager; nil selects DefaultRetryConfig
func NewRetryManager(config *RetryConfig) *RetryManager {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryManager{config: config}
}

// Execute runs fn until it succeeds, fails with a non-retryable error, or
// MaxRetries retries are spent. Non-retryable errors are returned unwrapped.
func (rm *RetryManager) Execute(ctx context.Context, fn RetryableFunc) (interface{}, error) {
	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !rm.Retryable(err) {
			return nil, err
		}
		if attempt > rm.config.MaxRetries {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}

		delay := rm.backoff(attempt)
		if rm.config.OnRetry != nil {
			rm.config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Retryable reports whether err is an HTTPError with a configured status.
// Cancellation is never retried.
func (rm *RetryManager) Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	return slices.Contains(rm.config.RetryableStatus, httpErr.StatusCode)
}

// backoff is BaseDelay * BackoffFactor^(attempt-1), capped at MaxDelay
func (rm *RetryManager) backoff(attempt int) time.Duration {
	delay := float64(rm.config.BaseDelay) * math.Pow(rm.config.BackoffFactor, float64(attempt-1))
	if limit := float64(rm.config.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if rm.config.Jitter {
		delay *= 0.75 + rand.Float64()*0.5
	}
	return time.Duration(delay)
}

// HTTPError is a non-2xx answer from a model or tool backend
type HTTPError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// NewHTTPError creates an HTTPError
func NewHTTPError(statusCode int, message, body string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Body:       body,
	}
}
