// Package ratelimit implements token bucket rate limiting per court portal.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter manages per-court rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	overrides    map[string]float64
	defaultRate  rate.Limit
	defaultBurst int
	observe      func(key string, waited time.Duration)
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// PerCourtRPS overrides DefaultRPS for specific court acronyms.
	PerCourtRPS map[string]float64
	// Observe, when set, receives waits longer than a millisecond.
	Observe func(key string, waited time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	overrides := make(map[string]float64, len(cfg.PerCourtRPS))
	for k, v := range cfg.PerCourtRPS {
		overrides[normalizeKey(k)] = v
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		overrides:    overrides,
		defaultRate:  limitFor(cfg.DefaultRPS),
		defaultBurst: burst,
		observe:      cfg.Observe,
	}
}

// Wait blocks until a token is available for the given court, respecting the context.
func (l *Limiter) Wait(ctx context.Context, court string) error {
	key := normalizeKey(court)
	limiter := l.limiterFor(key)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond && l.observe != nil {
		l.observe(key, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[key]
	if !exists {
		r := l.defaultRate
		if rps, ok := l.overrides[key]; ok {
			r = limitFor(rps)
		}
		limiter = rate.NewLimiter(r, l.defaultBurst)
		l.limiters[key] = limiter
	}
	return limiter
}

func limitFor(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func normalizeKey(court string) string {
	key := strings.ToUpper(strings.TrimSpace(court))
	if key == "" {
		return "unknown"
	}
	return key
}
