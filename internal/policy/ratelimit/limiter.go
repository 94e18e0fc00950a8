// Package ratelimit spaces outgoing requests run-wide and, optionally, per host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/research-scraper/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// RequestDelay is the minimum spacing between any two requests in a run.
	RequestDelay time.Duration
	// PerHostRPS additionally caps each host. Zero disables the per-host cap.
	PerHostRPS   float64
	PerHostBurst int
}

// Limiter implements scraper.Limiter.
type Limiter struct {
	global *rate.Limiter

	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	hostRate     rate.Limit
	hostBurst    int
	perHostLimit bool
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	global := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestDelay > 0 {
		global = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}
	burst := cfg.PerHostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		global:       global,
		limiters:     make(map[string]*rate.Limiter),
		hostRate:     rate.Limit(cfg.PerHostRPS),
		hostBurst:    burst,
		perHostLimit: cfg.PerHostRPS > 0,
	}
}

// Wait blocks until both the run-wide and the host token are available.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := metrics.SanitizeSite(rawURL)
	start := time.Now()

	if l.perHostLimit {
		if err := l.hostLimiter(domain).Wait(ctx); err != nil {
			return fmt.Errorf("host rate limit wait: %w", err)
		}
	}
	if err := l.global.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	// Measuring the whole call is a fair proxy for the delay the limiter added.
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, duration)
	}
	return nil
}

func (l *Limiter) hostLimiter(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[domain]
	if !exists {
		limiter = rate.NewLimiter(l.hostRate, l.hostBurst)
		l.limiters[domain] = limiter
	}
	return limiter
}

// Hosts reports how many hosts have a dedicated limiter.
func (l *Limiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
