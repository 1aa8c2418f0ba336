// Package ratelimit caps the request rate per host with token buckets. It is
// independent of the crawl engine's latency-based admission pacing and is off
// unless a positive rate is configured.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the steady request rate allowed per host; <= 0 means unlimited.
	RPS float64
	// Burst is the bucket size; values below 1 become 1.
	Burst int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	waited   time.Duration
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    r,
		burst:    max(cfg.Burst, 1),
	}
}

// Enabled reports whether the limiter ever delays requests.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit != rate.Inf
}

// Wait blocks until host may send another request or ctx ends.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if !l.Enabled() {
		return nil
	}
	start := time.Now()
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	l.mu.Lock()
	l.waited += time.Since(start)
	l.mu.Unlock()
	return nil
}

// Waited returns the total time callers spent blocked in Wait.
func (l *Limiter) Waited() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waited
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	host = strings.ToLower(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[host]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.limiters[host] = b
	}
	return b
}
