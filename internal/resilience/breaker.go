// Package resilience guards provider calls with circuit breakers and
// composes primary/fallback provider pairs into failover chains.
//
// [Breaker] is a three-state breaker (closed, open, half-open). [Chain]
// pairs each provider in a failover group with its own breaker so a dead
// primary is skipped without paying its timeout on every call.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cooldown elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. Success closes
	// the breaker, any failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Trip is the consecutive-failure count that opens the breaker.
	// Default 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing again.
	// Default 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls required to close.
	// Default 3.
	Probes int
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int

	mu         sync.Mutex
	state      State
	failures   int
	lastFail   time.Time
	probeCalls int
	probeFails int
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
	}
}

// Do runs fn unless the breaker is open. Half-open admits at most the
// configured number of probes; everything beyond that gets [ErrOpen].
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if time.Since(b.lastFail) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("circuit half-open, probing", "breaker", b.name)
	case HalfOpen:
		if b.probeCalls >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == HalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	b.lastFail = time.Now()
	if probing {
		b.probeFails++
		b.state = Open
		b.failures = b.trip
		slog.Warn("circuit re-opened after failed probe", "breaker", b.name)
		return
	}
	b.failures++
	if b.failures >= b.trip {
		b.state = Open
		slog.Warn("circuit opened", "breaker", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probes {
			b.state = Closed
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			slog.Info("circuit closed", "breaker", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports [HalfOpen]; the transition itself happens on the next Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && time.Since(b.lastFail) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
}
