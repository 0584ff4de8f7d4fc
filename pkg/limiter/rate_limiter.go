package limiter

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultMaxRPM applies when a caller does not specify a limit
const DefaultMaxRPM = 1000

// RateLimiter manages one token bucket per name
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	rpm      map[string]int
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rpm:      make(map[string]int),
	}
}

// GetLimiter returns or creates the limiter for name allowing maxRPM requests per minute
func (rl *RateLimiter) GetLimiter(name string, maxRPM int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[name]; exists {
		return limiter
	}

	if maxRPM <= 0 {
		maxRPM = DefaultMaxRPM
	}
	burst := maxRPM / 10 // Burst = 1/10 of limit
	if burst < 1 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(float64(maxRPM)/60.0), burst)
	rl.limiters[name] = limiter
	rl.rpm[name] = maxRPM
	return limiter
}

// Wait waits for the rate limiter to allow the request
func (rl *RateLimiter) Wait(ctx context.Context, name string, maxRPM int) error {
	if err := rl.GetLimiter(name, maxRPM).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	return nil
}

// Allow checks if the request is allowed without waiting
func (rl *RateLimiter) Allow(name string, maxRPM int) bool {
	return rl.GetLimiter(name, maxRPM).Allow()
}

// Ready reports whether a request would be allowed now, without consuming a token
func (rl *RateLimiter) Ready(name string, maxRPM int) bool {
	return rl.GetLimiter(name, maxRPM).Tokens() >= 1
}

// GetStats returns rate limiter statistics for name
func (rl *RateLimiter) GetStats(name string, maxRPM int) map[string]interface{} {
	limiter := rl.GetLimiter(name, maxRPM)

	rl.mu.Lock()
	rpm := rl.rpm[name]
	rl.mu.Unlock()

	return map[string]interface{}{
		"name":    name,
		"limit":   float64(limiter.Limit()),
		"burst":   limiter.Burst(),
		"tokens":  limiter.Tokens(),
		"max_rpm": rpm,
	}
}

// Reset resets the rate limiter for name
func (rl *RateLimiter) Reset(name string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	delete(rl.limiters, name)
	delete(rl.rpm, name)
}

// ResetAll resets all rate limiters
func (rl *RateLimiter) ResetAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limiters = make(map[string]*rate.Limiter)
	rl.rpm = make(map[string]int)
}
