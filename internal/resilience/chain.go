package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Chain] failed or had an
// open breaker.
var ErrExhausted = errors.New("resilience: all providers failed")

// ChainConfig configures the per-entry breaker of a [Chain].
type ChainConfig struct {
	Breaker BreakerConfig
}

type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain tries a primary and then its fallbacks, in registration order. Each
// entry carries its own [Breaker], so an entry that keeps failing gets
// skipped immediately instead of timing out on every call.
//
// Chain is safe for concurrent use once built; Add must not race with Do.
type Chain[T any] struct {
	entries []chainEntry[T]
	cfg     ChainConfig
}

// NewChain creates a [Chain] with primary as its first entry.
func NewChain[T any](primaryName string, primary T, cfg ChainConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(primaryName, primary)
	return c
}

// Add appends a fallback, tried after every earlier entry.
func (c *Chain[T]) Add(name string, value T) {
	bc := c.cfg.Breaker
	bc.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(bc),
	})
}

// Do runs fn against each entry until one succeeds. Entries with open
// breakers are skipped. When all fail, the last error is wrapped in
// [ErrExhausted].
func (c *Chain[T]) Do(fn func(T) error) error {
	var lastErr error
	for i := range c.entries {
		e := &c.entries[i]
		err := e.breaker.Do(func() error { return fn(e.value) })
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// First runs fn against each chain entry until one succeeds and returns its
// result. Package-level because Go methods cannot add type parameters.
func First[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.entries {
		e := &c.entries[i]
		var out R
		err := e.breaker.Do(func() error {
			var inner error
			out, inner = fn(e.value)
			return inner
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping provider, circuit open", "provider", e.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", e.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// primary returns the first entry's value. Used by wrappers for static
// metadata that does not participate in failover.
func (c *Chain[T]) primary() T {
	return c.entries[0].value
}
