package taskmgr

import (
	"context"
	"time"
)

// Unit is one execution strategy for a spawned bot. The manager treats
// goroutine-backed and subprocess-backed units uniformly.
type Unit interface {
	// Start launches the unit. It must not block on the unit's work.
	Start(ctx context.Context) error

	// Handle returns the unit's identifier after Start. Subprocess units
	// report the OS pid; goroutine units report 0 and the manager assigns a
	// synthetic handle.
	Handle() int

	// Alive reports whether the unit is still executing.
	Alive() bool

	// Stop asks the unit to terminate, escalating after the grace period.
	// It blocks until the unit has fully stopped or the escalation failed.
	Stop(grace time.Duration) error
}
