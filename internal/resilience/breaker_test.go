package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.trip != 5 {
		t.Errorf("trip = %d, want 5", b.trip)
	}
	if b.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", b.cooldown)
	}
	if b.probes != 3 {
		t.Errorf("probes = %d, want 3", b.probes)
	}
	if b.State() != Closed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_ClosedForwardsCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Trip: 3})
	called := false
	err := b.Do(func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:     "test",
		Trip:     3,
		Cooldown: time.Hour, // stays open for the whole test
	})

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errTest })
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open after 3 failures", b.State())
	}

	err := b.Do(func() error { return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Trip: 3})

	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return nil })

	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after a success", b.State())
	}

	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return errTest })
	if b.State() != Closed {
		t.Fatal("should still be closed after only 2 failures post-reset")
	}
}

func TestBreaker_OpenToHalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:     "test",
		Trip:     1,
		Cooldown: 10 * time.Millisecond,
	})

	_ = b.Do(func() error { return errTest })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterProbes(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:     "test",
		Trip:     1,
		Cooldown: time.Millisecond,
		Probes:   2,
	})

	_ = b.Do(func() error { return errTest })
	time.Sleep(5 * time.Millisecond)

	// Two successful probes should close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i, err)
		}
	}
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreaker_HalfOpenReopensOnFailure(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:     "test",
		Trip:     1,
		Cooldown: time.Millisecond,
	})

	_ = b.Do(func() error { return errTest })
	time.Sleep(5 * time.Millisecond)

	_ = b.Do(func() error { return errTest })
	if b.State() != Open {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", Trip: 1, Cooldown: time.Hour})
	_ = b.Do(func() error { return errTest })
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}

	b.Reset()
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed after Reset", b.State())
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Closed:   "closed",
		Open:     "open",
		HalfOpen: "half-open",
		State(9): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
