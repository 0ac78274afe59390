// rate_limiter.go - Per-client rate limiting for the pool client daemon
package main

import (
	"sync"

	"golang.org/x/time/rate"
)

// ClientRateLimiter manages a token bucket per client address
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewClientRateLimiter creates a new per-client rate limiter
func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether a request from the given client may proceed
func (c *ClientRateLimiter) Allow(client string) bool {
	c.mu.Lock()
	limiter, ok := c.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(c.rps, c.burst)
		c.limiters[client] = limiter
	}
	c.mu.Unlock()

	return limiter.Allow()
}

// Reset drops all tracked clients
func (c *ClientRateLimiter) Reset() {
	c.mu.Lock()
	c.limiters = make(map[string]*rate.Limiter)
	c.mu.Unlock()
}
