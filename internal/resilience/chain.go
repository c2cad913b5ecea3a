package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned by Do when every entry in a Chain failed
// or was rejected by its breaker.
var ErrAllBackendsFailed = errors.New("resilience: all backends failed")

// chainEntry pairs one backend with its own breaker, so a tripped primary
// does not poison the fallbacks.
type chainEntry[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds a primary backend and its fallbacks, tried in registration
// order. Safe for concurrent use after registration is complete.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     BreakerConfig
}

// NewChain builds a Chain with primary as the first entry. cfg seeds the
// breaker of every entry; the Name field is replaced per entry.
func NewChain[T any](primary T, name string, cfg BreakerConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.add(name, primary)
	return c
}

// AddFallback appends a backend tried after everything registered before it.
func (c *Chain[T]) AddFallback(name string, backend T) {
	c.add(name, backend)
}

func (c *Chain[T]) add(name string, backend T) {
	cfg := c.cfg
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// Len returns the number of registered backends.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Do tries fn against each backend in order until one succeeds. Entries
// with an open breaker are skipped. A free function because methods cannot
// introduce the result type parameter.
func Do[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		e := &c.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var callErr error
			result, callErr = fn(e.backend)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", e.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
