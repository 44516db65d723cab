package taskmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// GoroutineUnit runs a bot session in-process. Stop cancels the session
// context; the session's own teardown joins its goroutines, so the grace
// period only bounds how long Stop waits for that teardown.
type GoroutineUnit struct {
	run func(ctx context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

var _ Unit = (*GoroutineUnit)(nil)

// NewGoroutineUnit wraps a blocking session function, typically Bot.Run.
func NewGoroutineUnit(run func(ctx context.Context) error) *GoroutineUnit {
	return &GoroutineUnit{run: run}
}

// Start implements [Unit].
func (u *GoroutineUnit) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	u.mu.Lock()
	if u.done != nil {
		u.mu.Unlock()
		cancel()
		return fmt.Errorf("taskmgr: unit already started")
	}
	u.cancel = cancel
	u.done = done
	u.mu.Unlock()

	go func() {
		defer close(done)
		err := u.run(runCtx)
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
		if err != nil {
			slog.Warn("taskmgr: session ended with error", "err", err)
		}
	}()
	return nil
}

// Handle implements [Unit]. Goroutine units have no OS pid.
func (u *GoroutineUnit) Handle() int { return 0 }

// Alive implements [Unit].
func (u *GoroutineUnit) Alive() bool {
	u.mu.Lock()
	done := u.done
	u.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Err returns the session's outcome once it has finished.
func (u *GoroutineUnit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Stop implements [Unit].
func (u *GoroutineUnit) Stop(grace time.Duration) error {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.mu.Unlock()
	if done == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("taskmgr: session did not stop within %s", grace)
	}
}
