package limiter

import (
	"context"
	"fmt"
)

// ProtectionConfig configures a ProtectionManager
// Zero values select the package defaults.
type ProtectionConfig struct {
	MaxRPM        int
	Retry         *RetryConfig
	Breaker       func(name string) *CircuitBreakerConfig
	OnStateChange StateChangeFunc
}

// ProtectionManager integrates rate limiting, retries, and circuit breaker
type ProtectionManager struct {
	rateLimiter    *RateLimiter
	retryManager   *RetryManager
	circuitBreaker *CircuitBreakerManager
	maxRPM         int
}

// NewProtectionManager creates a new protection manager
func NewProtectionManager(config ProtectionConfig) *ProtectionManager {
	var opts []BreakerOption
	if config.Breaker != nil {
		opts = append(opts, WithBreakerConfig(config.Breaker))
	}
	if config.OnStateChange != nil {
		opts = append(opts, WithStateChange(config.OnStateChange))
	}

	return &ProtectionManager{
		rateLimiter:    NewRateLimiter(),
		retryManager:   NewRetryManager(config.Retry),
		circuitBreaker: NewCircuitBreakerManager(opts...),
		maxRPM:         config.MaxRPM,
	}
}

// ExecuteWithProtection executes fn for name with all protection mechanisms:
// fail fast on an open breaker, wait for the rate limiter, then retry inside
// the breaker so one logical call counts once.
func (pm *ProtectionManager) ExecuteWithProtection(
	ctx context.Context,
	name string,
	fn func(ctx context.Context) (interface{}, error),
) (interface{}, error) {
	if pm.circuitBreaker.IsOpen(name) {
		return nil, fmt.Errorf("circuit breaker is open for %s", name)
	}

	if err := pm.rateLimiter.Wait(ctx, name, pm.maxRPM); err != nil {
		return nil, fmt.Errorf("rate limiting failed: %w", err)
	}

	result, err := pm.circuitBreaker.Execute(ctx, name, func() (interface{}, error) {
		return pm.retryManager.Execute(ctx, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("protected execution failed: %w", err)
	}

	return result, nil
}

// GetStats returns statistics for all protection mechanisms of name
func (pm *ProtectionManager) GetStats(name string) map[string]interface{} {
	cfg := pm.retryManager.config
	return map[string]interface{}{
		"name":            name,
		"rate_limiter":    pm.rateLimiter.GetStats(name, pm.maxRPM),
		"circuit_breaker": pm.circuitBreaker.GetStats(name),
		"retry_config": map[string]interface{}{
			"max_retries":      cfg.MaxRetries,
			"base_delay":       cfg.BaseDelay.String(),
			"max_delay":        cfg.MaxDelay.String(),
			"backoff_factor":   cfg.BackoffFactor,
			"jitter":           cfg.Jitter,
			"retryable_status": cfg.RetryableStatus,
		},
	}
}

// IsAvailable reports whether name is neither circuit broken nor rate
// limited. It does not consume a token.
func (pm *ProtectionManager) IsAvailable(name string) bool {
	if pm.circuitBreaker.IsOpen(name) {
		return false
	}
	return pm.rateLimiter.Ready(name, pm.maxRPM)
}

// Reset resets all protection mechanisms for name
func (pm *ProtectionManager) Reset(name string) {
	pm.rateLimiter.Reset(name)
	pm.circuitBreaker.Reset(name)
}

// ResetAll resets all protection mechanisms
func (pm *ProtectionManager) ResetAll() {
	pm.rateLimiter.ResetAll()
	pm.circuitBreaker.ResetAll()
}
