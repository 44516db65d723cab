package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/pkg/frame"
)

// State is the lifecycle state of a [Task].
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCancelled
	StateCompleted
	StateErrored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrCancelled is returned from [Task.Run] when the task was stopped by
// [Task.Cancel] or by context cancellation before completing.
var ErrCancelled = errors.New("pipeline: task cancelled")

// ErrAlreadyStarted is returned when Run is called twice on the same task.
var ErrAlreadyStarted = errors.New("pipeline: task already started")

// Params configures a task. The audio formats are fixed for the task's
// lifetime and broadcast to every stage in the initial [frame.StartFrame].
type Params struct {
	// AllowInterruptions enables mid-turn interruption propagation.
	AllowInterruptions bool

	// Observer, when non-nil, receives frame-movement notifications. It is a
	// side channel and never alters delivery order.
	Observer Observer

	AudioInSampleRate  int
	AudioInChannels    int
	AudioOutSampleRate int
	AudioOutChannels   int
}

// Task owns a running pipeline plus its injection queue. A task is created
// per session when a bot starts, runs until an EndFrame or fatal error
// terminates it or the task is cancelled, and is never reused.
type Task struct {
	id       string
	pipeline *Pipeline
	params   Params

	source *taskSource
	sink   *taskSink

	state     atomic.Int32
	injection chan frame.Frame
	readyCh   chan struct{}
	cancelCh  chan struct{}
	doneCh    chan struct{}

	cancelOnce sync.Once
	finishOnce sync.Once
	finishErr  error
}

// NewTask creates a task for the given pipeline. The task starts in
// [StateCreated]; call [Task.Run] (typically via a [Runner]) to execute it.
func NewTask(p *Pipeline, params Params) *Task {
	t := &Task{
		id:        uuid.NewString(),
		pipeline:  p,
		params:    params,
		injection: make(chan frame.Frame, 64),
		readyCh:   make(chan struct{}),
		cancelCh:  make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	t.source = &taskSource{task: t}
	t.source.InitName("source")
	t.sink = &taskSink{task: t}
	t.sink.InitName("sink")
	t.state.Store(int32(StateCreated))
	return t
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// State returns the task's current lifecycle state.
func (t *Task) State() State { return State(t.state.Load()) }

// QueueFrame injects a frame at the head of the pipeline. System frames are
// delivered out-of-band, ahead of anything already queued. Out-of-band
// dispatch runs inline on the stages, so a system frame queued before Run has
// wired the chain waits for the wiring instead of touching unstarted stages.
// Returns an error once the task has reached a terminal state.
func (t *Task) QueueFrame(f frame.Frame) error {
	switch t.State() {
	case StateCancelled, StateCompleted, StateErrored:
		return fmt.Errorf("pipeline: queue %s: task is %s", f.Kind(), t.State())
	}
	if frame.IsSystem(f) {
		select {
		case <-t.readyCh:
		case <-t.doneCh:
			return fmt.Errorf("pipeline: queue %s: task finished", f.Kind())
		case <-t.cancelCh:
			return fmt.Errorf("pipeline: queue %s: task cancelled", f.Kind())
		}
		return t.source.enqueue(f, Downstream)
	}
	select {
	case t.injection <- f:
		return nil
	case <-t.doneCh:
		return fmt.Errorf("pipeline: queue %s: task finished", f.Kind())
	}
}

// QueueFrames injects frames in order.
func (t *Task) QueueFrames(frames ...frame.Frame) error {
	for _, f := range frames {
		if err := t.QueueFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// StopWhenDone queues an EndFrame, letting already-queued data flush before
// the task completes.
func (t *Task) StopWhenDone() error {
	return t.QueueFrame(frame.EndFrame{})
}

// Cancel aborts the task without waiting for queued data. Safe to call from
// any goroutine and more than once.
func (t *Task) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancelCh) })
}

// Run executes the task to completion. It starts every stage, queues the
// initial StartFrame, pumps injected frames into the chain, and blocks until
// the pipeline completes, errors fatally, or is cancelled. All stages and
// their worker goroutines are joined before Run returns — no detached work
// survives task termination.
func (t *Task) Run(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Wire source -> stages -> sink.
	chain := make([]Processor, 0, len(t.pipeline.stages)+2)
	chain = append(chain, t.source)
	chain = append(chain, t.pipeline.stages...)
	chain = append(chain, t.sink)
	for i, p := range chain {
		var prev, next Processor
		if i > 0 {
			prev = chain[i-1]
		}
		if i < len(chain)-1 {
			next = chain[i+1]
		}
		p.base().link(p, prev, next)
	}
	for _, p := range chain {
		p.base().start(runCtx, t.params.Observer)
	}
	// The chain can now take out-of-band frames.
	close(t.readyCh)

	slog.Debug("pipeline task starting", "task_id", t.id, "pipeline", t.pipeline.String())

	start := frame.StartFrame{
		AllowInterruptions: t.params.AllowInterruptions,
		AudioInSampleRate:  t.params.AudioInSampleRate,
		AudioInChannels:    t.params.AudioInChannels,
		AudioOutSampleRate: t.params.AudioOutSampleRate,
		AudioOutChannels:   t.params.AudioOutChannels,
	}
	if err := t.source.enqueue(start, Downstream); err != nil {
		t.teardown(chain, cancel, StateErrored)
		return fmt.Errorf("pipeline: queue start frame: %w", err)
	}

	cancelled := false
pump:
	for {
		select {
		case <-t.doneCh:
			break pump
		case <-ctx.Done():
			cancelled = true
			break pump
		case <-t.cancelCh:
			cancelled = true
			break pump
		case f := <-t.injection:
			if err := t.source.enqueue(f, Downstream); err != nil {
				slog.Warn("pipeline: dropping injected frame", "task_id", t.id,
					"frame", f.Kind(), "err", err)
			}
		}
	}

	if cancelled {
		// Propagate cancellation through every stage inline so each one
		// drops pending work and releases per-turn state.
		_ = t.source.enqueue(frame.CancelFrame{}, Downstream)
		t.teardown(chain, cancel, StateCancelled)
		slog.Info("pipeline task cancelled", "task_id", t.id)
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrCancelled
	}

	final := StateCompleted
	if t.finishErr != nil {
		final = StateErrored
	}
	t.teardown(chain, cancel, final)
	slog.Debug("pipeline task finished", "task_id", t.id, "state", final.String(),
		"err", t.finishErr)
	return t.finishErr
}

// teardown stops all stage queue goroutines, cancels the run context so
// in-flight workers observe cancellation, and runs Cleanup on every stage in
// chain order. The final state is recorded last.
func (t *Task) teardown(chain []Processor, cancel context.CancelFunc, final State) {
	cancel()
	for _, p := range chain {
		p.base().stop()
	}
	for _, p := range chain {
		if err := p.Cleanup(); err != nil {
			slog.Warn("pipeline: stage cleanup error", "task_id", t.id,
				"stage", p.Name(), "err", err)
		}
	}
	t.state.Store(int32(final))
}

// finish records the pipeline outcome and unblocks Run. Only the first call
// wins.
func (t *Task) finish(err error) {
	t.finishOnce.Do(func() {
		t.finishErr = err
		close(t.doneCh)
	})
}

// taskSource is the implicit stage ahead of the user pipeline. Injected
// frames enter here; upstream frames that travel past the first user stage
// terminate here.
type taskSource struct {
	BaseProcessor
	task *Task
}

func (s *taskSource) ProcessFrame(_ context.Context, f frame.Frame, dir Direction) error {
	if dir == Downstream {
		return s.PushFrame(f, Downstream)
	}
	// Upstream arrivals: the task is the final authority on fatal errors.
	if ef, ok := f.(frame.ErrorFrame); ok {
		if ef.Fatal {
			s.task.finish(ef.Err)
			return nil
		}
		slog.Warn("pipeline: upstream error reached task", "task_id", s.task.id, "err", ef.Err)
	}
	return nil
}

// taskSink is the implicit stage after the user pipeline. It detects
// completion and swallows everything else.
type taskSink struct {
	BaseProcessor
	task *Task
}

func (s *taskSink) ProcessFrame(_ context.Context, f frame.Frame, _ Direction) error {
	switch ef := f.(type) {
	case frame.EndFrame:
		s.task.finish(nil)
	case frame.ErrorFrame:
		if ef.Fatal {
			s.task.finish(ef.Err)
		}
	}
	return nil
}
