package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// Runner drives exactly one [Task] to completion. It exists so session
// orchestration code has a single place to hook lifecycle logging and — via
// the context it passes — top-down cancellation from transport disconnects.
type Runner struct {
	name string
}

// NewRunner creates a runner. The name appears in lifecycle logs; pass the
// session or bot identifier.
func NewRunner(name string) *Runner {
	if name == "" {
		name = "runner"
	}
	return &Runner{name: name}
}

// Run executes t and blocks until it reaches a terminal state. Cancelling ctx
// cancels the task; a cancellation outcome is reported as nil because it is
// the normal way a session ends.
func (r *Runner) Run(ctx context.Context, t *Task) error {
	slog.Info("runner: task starting", "runner", r.name, "task_id", t.ID())
	err := t.Run(ctx)
	switch {
	case err == nil:
		slog.Info("runner: task completed", "runner", r.name, "task_id", t.ID())
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		slog.Info("runner: task cancelled", "runner", r.name, "task_id", t.ID())
		return nil
	default:
		slog.Error("runner: task failed", "runner", r.name, "task_id", t.ID(), "err", err)
	}
	return err
}
