package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter spaces requests per host
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	delay    time.Duration
}

// NewRateLimiter creates a limiter allowing one request per delay per host.
// A zero delay disables limiting.
func NewRateLimiter(defaultDelay time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    defaultDelay,
	}
}

// Wait blocks until a request to urlStr may proceed
func (r *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return err
	}
	return r.getLimiter(parsedURL.Host).Wait(ctx)
}

// RaiseDomainDelay slows a host down to at least one request per delay.
// It never speeds a host up and keeps the limiter's accumulated state.
func (r *RateLimiter) RaiseDomainDelay(domain string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	limiter := r.getLimiter(domain)
	if limit := rate.Every(delay); limit < limiter.Limit() {
		limiter.SetLimit(limit)
	}
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (r *RateLimiter) getLimiter(domain string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[domain]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limitFor(r.delay), 1)
	r.limiters[domain] = limiter
	return limiter
}
