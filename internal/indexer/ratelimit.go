package indexer

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides per-endpoint rate limiting using token bucket algorithm.
// It is shared by every connection a Connector opens so concurrent requests
// against the same server draw from one bucket.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	rateLimit  rate.Limit
	burstLimit int
}

// NewRateLimiter creates a new rate limiter with the specified rate and burst.
// A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(ratePerSecond)
	if ratePerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rateLimit:  limit,
		burstLimit: burst,
	}
}

// DefaultRateLimiter returns a rate limiter with default settings.
// Default: 50 requests/second, burst of 20.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(50, 20)
}

// Wait blocks until a request to the endpoint is allowed or the context is canceled.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	return r.getLimiter(endpoint).Wait(ctx)
}

// Allow reports whether a request may proceed immediately.
func (r *RateLimiter) Allow(endpoint string) bool {
	return r.getLimiter(endpoint).Allow()
}

// getLimiter returns the limiter for the given endpoint, creating one if needed.
func (r *RateLimiter) getLimiter(endpoint string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[endpoint]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists = r.limiters[endpoint]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(r.rateLimit, r.burstLimit)
	r.limiters[endpoint] = limiter
	return limiter
}
