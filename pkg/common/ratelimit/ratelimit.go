// Package ratelimit provides thread-safe rate limiting with dynamically
// adjustable limits.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter controls how fast requests are issued against a downstream origin
// while allowing runtime adjustments based on origin conditions.
type Limiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// NewLimiter creates a Limiter with the specified requests per second (rps)
// and burst size. The burst parameter controls how many requests can be made
// at once to accommodate temporary spikes.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the rate limiter allows an event or the context is
// canceled. It returns an error if the context is canceled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiter.Wait(ctx)
}

// UpdateLimits dynamically adjusts the requests per second and burst size.
// This allows adapting to changing origin conditions at runtime.
func (l *Limiter) UpdateLimits(rps float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter.SetLimit(rate.Limit(rps))
	l.limiter.SetBurst(burst)
}
