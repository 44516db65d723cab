package taskmgr

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcessUnit runs a bot session as an OS subprocess, isolating a misbehaving
// session from the server. Stop sends SIGTERM and escalates to SIGKILL after
// the grace period.
type ProcessUnit struct {
	path string
	args []string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

var _ Unit = (*ProcessUnit)(nil)

// NewProcessUnit prepares a subprocess invocation. path is the executable,
// typically the server's own binary re-invoked with a bot subcommand.
func NewProcessUnit(path string, args ...string) *ProcessUnit {
	return &ProcessUnit{path: path, args: args}
}

// Start implements [Unit].
func (u *ProcessUnit) Start(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cmd != nil {
		return fmt.Errorf("taskmgr: process already started")
	}

	// The subprocess outlives the spawning request's context on purpose; its
	// lifetime is managed through Stop.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), u.path, u.args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("taskmgr: start %s: %w", u.path, err)
	}
	u.cmd = cmd
	u.done = make(chan struct{})

	done := u.done
	go func() {
		defer close(done)
		err := cmd.Wait()
		u.mu.Lock()
		u.err = err
		u.mu.Unlock()
		if err != nil {
			slog.Warn("taskmgr: subprocess exited with error", "pid", cmd.Process.Pid, "err", err)
		}
	}()
	return nil
}

// Handle implements [Unit], returning the OS pid.
func (u *ProcessUnit) Handle() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cmd == nil || u.cmd.Process == nil {
		return 0
	}
	return u.cmd.Process.Pid
}

// Alive implements [Unit].
func (u *ProcessUnit) Alive() bool {
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

// Err returns the process outcome once it has exited.
func (u *ProcessUnit) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Stop implements [Unit].
func (u *ProcessUnit) Stop(grace time.Duration) error {
	u.mu.Lock()
	cmd, done := u.cmd, u.done
	u.mu.Unlock()
	if cmd == nil || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Debug("taskmgr: SIGTERM failed", "pid", cmd.Process.Pid, "err", err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	slog.Warn("taskmgr: escalating to SIGKILL", "pid", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("taskmgr: kill pid %d: %w", cmd.Process.Pid, err)
	}
	<-done
	return nil
}
