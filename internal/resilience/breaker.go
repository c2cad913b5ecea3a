// Package resilience keeps recognition running when a backend misbehaves.
// A Breaker stops hammering a backend that keeps failing; a Chain tries a
// primary backend and falls over to the next healthy one. The transcriber
// issues several concurrent passes per clip, so a dead whisper-server or a
// rate-limited API would otherwise fail every pass at once.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without calling the backend while the breaker
// is cooling down after repeated failures.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// Breaker defaults.
const (
	DefaultMaxFailures = 5
	DefaultCooldown    = 30 * time.Second
)

// BreakerConfig tunes a Breaker.
type BreakerConfig struct {
	// Name labels the protected backend in log messages.
	Name string

	// MaxFailures is the consecutive failure count that trips the breaker.
	// Default: 5.
	MaxFailures int

	// Cooldown is how long a tripped breaker rejects calls before allowing
	// a probe. Default: 30s.
	Cooldown time.Duration
}

// Breaker is a three-state circuit breaker: closed while the backend is
// healthy, open for Cooldown after MaxFailures consecutive failures, then
// half-open for a single probe call that either closes or re-trips it.
// Safe for concurrent use.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker builds a Breaker, filling zero config fields with defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
	}
}

// Do runs fn unless the breaker is open. While open, the first call after
// the cooldown goes through as a probe; its outcome decides whether the
// breaker closes again.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.failures >= b.maxFailures {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.probing = true
		slog.Info("breaker probing backend", "backend", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	wasProbe := b.probing
	b.probing = false

	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		if wasProbe {
			slog.Warn("breaker probe failed, staying open", "backend", b.name)
		} else if b.failures == b.maxFailures {
			slog.Warn("breaker opened",
				"backend", b.name,
				"consecutive_failures", b.failures)
		}
		return err
	}

	if b.failures >= b.maxFailures {
		slog.Info("breaker closed after successful probe", "backend", b.name)
	}
	b.failures = 0
	return nil
}

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.maxFailures && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probing = false
}
