// Package pipeline implements the frame-scheduling runtime: typed frames
// moving through an ordered chain of asynchronous stages.
//
// The three building blocks are:
//
//   - [Processor] — one pipeline stage. Concrete processors embed
//     [BaseProcessor] for queueing and neighbour wiring and implement
//     ProcessFrame for their own semantics.
//   - [Pipeline] — an ordered chain of processors wired output-to-input.
//   - [Task] — owns one pipeline's execution lifecycle: frame injection,
//     interruption propagation, cancellation, and completion. A [Runner]
//     drives exactly one task to completion.
//
// Each stage owns a FIFO input queue serviced by a dedicated goroutine, so a
// slow stage applies backpressure to its upstream neighbour instead of
// blocking the whole graph. System frames (interruptions, cancellation,
// errors) bypass the queues entirely: they are handled inline on the caller's
// goroutine, ahead of any queued data frame. Long-running model inference
// must never run inside ProcessFrame on the queue goroutine's critical path;
// stages delegate it to a worker goroutine and re-inject results via
// [BaseProcessor.PushFrame].
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
)

// Direction indicates which way a frame travels through the chain.
type Direction int

const (
	// Downstream moves a frame towards the output transport.
	Downstream Direction = iota

	// Upstream moves a frame back towards the input transport. Used for
	// context updates that earlier stages consume (e.g. the transcription
	// an output-side aggregator needs).
	Upstream
)

// String returns "down" or "up".
func (d Direction) String() string {
	if d == Upstream {
		return "up"
	}
	return "down"
}

// DefaultQueueDepth is the per-stage input queue capacity. Deep enough to
// absorb a burst of 20 ms audio frames without stalling the transport reader.
const DefaultQueueDepth = 128

// ErrStageStopped is returned by PushFrame when the target stage has already
// been stopped by its task.
var ErrStageStopped = errors.New("pipeline: stage stopped")

// Observer receives side-channel notifications about frame movement. It must
// not block and must not alter frame delivery order.
type Observer interface {
	// OnFrame is called after stage pushed f in direction dir.
	OnFrame(stage string, f frame.Frame, dir Direction)
}

// Processor is a single pipeline stage: it consumes frames and optionally
// produces frames in either direction via [BaseProcessor.PushFrame].
//
// A processor must forward every control and system frame it does not
// specifically understand; dropping an unrecognised control frame breaks the
// stages behind it. Frames a processor did not create must not be mutated.
//
// Implementations embed [BaseProcessor], which supplies the unexported
// plumbing methods.
type Processor interface {
	// Name identifies the stage in logs and metrics.
	Name() string

	// ProcessFrame handles one frame travelling in direction dir. Data and
	// control frames arrive sequentially on the stage's queue goroutine;
	// system frames may arrive concurrently on another goroutine, so any
	// state touched by both paths needs the processor's own locking.
	//
	// A returned error is converted by the runtime into an [frame.ErrorFrame]
	// pushed downstream; it does not terminate the task unless fatal.
	ProcessFrame(ctx context.Context, f frame.Frame, dir Direction) error

	// Cleanup releases stage-owned resources. The task calls it exactly once
	// during teardown, after no more frames will be delivered.
	Cleanup() error

	base() *BaseProcessor
}

// queued is one entry in a stage's input queue.
type queued struct {
	f   frame.Frame
	dir Direction
}

// BaseProcessor provides queueing, neighbour wiring, and frame pushing for
// concrete processors. Embed it by value and call [BaseProcessor.InitName]
// (or leave the name empty to use the zero value "processor").
type BaseProcessor struct {
	name string

	// self is the embedding processor; set when the pipeline links stages.
	self Processor
	prev Processor
	next Processor

	ctx context.Context
	obs Observer

	queue    chan queued
	stopCh   chan struct{}
	loopDone chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// InitName sets the stage name. Call it from the concrete constructor.
func (b *BaseProcessor) InitName(name string) { b.name = name }

// Name returns the stage name.
func (b *BaseProcessor) Name() string {
	if b.name == "" {
		return "processor"
	}
	return b.name
}

// Cleanup is a no-op by default; concrete processors override it when they
// own resources.
func (b *BaseProcessor) Cleanup() error { return nil }

func (b *BaseProcessor) base() *BaseProcessor { return b }

// link wires the stage into a chain. Called once before start.
func (b *BaseProcessor) link(self, prev, next Processor) {
	b.self = self
	b.prev = prev
	b.next = next
}

// start spawns the stage's queue goroutine. Idempotent.
func (b *BaseProcessor) start(ctx context.Context, obs Observer) {
	b.startOnce.Do(func() {
		b.ctx = ctx
		b.obs = obs
		b.queue = make(chan queued, DefaultQueueDepth)
		b.stopCh = make(chan struct{})
		b.loopDone = make(chan struct{})
		go b.loop()
	})
}

// stop terminates the queue goroutine. Frames still queued are abandoned;
// by the time a task stops its stages either the EndFrame has flushed
// through or the task is being cancelled.
func (b *BaseProcessor) stop() {
	b.stopOnce.Do(func() {
		if b.stopCh != nil {
			close(b.stopCh)
		}
	})
	if b.loopDone != nil {
		<-b.loopDone
	}
}

// loop services the stage's input queue in FIFO order.
func (b *BaseProcessor) loop() {
	defer close(b.loopDone)
	for {
		select {
		case <-b.stopCh:
			return
		case qf := <-b.queue:
			b.dispatch(qf.f, qf.dir)
		}
	}
}

// dispatch runs ProcessFrame and converts a stage error into an ErrorFrame
// pushed downstream, per the processor failure contract.
func (b *BaseProcessor) dispatch(f frame.Frame, dir Direction) {
	if err := b.self.ProcessFrame(b.ctx, f, dir); err != nil {
		if _, isErr := f.(frame.ErrorFrame); isErr {
			slog.Error("pipeline: stage failed while handling error frame",
				"stage", b.Name(), "err", err)
			return
		}
		slog.Warn("pipeline: stage error", "stage", b.Name(), "frame", f.Kind(), "err", err)
		_ = b.PushFrame(frame.ErrorFrame{Err: err}, Downstream)
	}
}

// enqueue delivers a frame to this stage. Data and control frames enter the
// FIFO queue; system frames are handled inline, ahead of anything queued.
// A StartInterruptionFrame additionally discards every queued frame so the
// stage abandons the current turn immediately.
func (b *BaseProcessor) enqueue(f frame.Frame, dir Direction) error {
	if frame.IsSystem(f) {
		if _, ok := f.(frame.StartInterruptionFrame); ok {
			b.clearQueue()
		}
		if err := b.self.ProcessFrame(b.ctx, f, dir); err != nil {
			slog.Warn("pipeline: stage error on system frame",
				"stage", b.Name(), "frame", f.Kind(), "err", err)
		}
		return nil
	}

	select {
	case b.queue <- queued{f: f, dir: dir}:
		return nil
	case <-b.stopCh:
		return ErrStageStopped
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

// clearQueue discards all currently queued frames without blocking.
func (b *BaseProcessor) clearQueue() {
	for {
		select {
		case <-b.queue:
		default:
			return
		}
	}
}

// PushFrame delivers f to the neighbouring stage in direction dir. It is
// safe to call from worker goroutines re-injecting inference results. Pushing
// past the end of the chain is a no-op.
func (b *BaseProcessor) PushFrame(f frame.Frame, dir Direction) error {
	var target Processor
	if dir == Downstream {
		target = b.next
	} else {
		target = b.prev
	}
	if target == nil {
		return nil
	}
	if b.obs != nil {
		b.obs.OnFrame(b.Name(), f, dir)
	}
	return target.base().enqueue(f, dir)
}

// Context returns the task run context the stage was started with. Worker
// goroutines should derive their per-generation contexts from it.
func (b *BaseProcessor) Context() context.Context {
	if b.ctx == nil {
		return context.Background()
	}
	return b.ctx
}

// Passthrough is a stage that forwards every frame unchanged. Useful as a
// placeholder and in tests.
type Passthrough struct {
	BaseProcessor
}

// NewPassthrough creates a named passthrough stage.
func NewPassthrough(name string) *Passthrough {
	p := &Passthrough{}
	p.InitName(name)
	return p
}

// ProcessFrame forwards f in its direction of travel.
func (p *Passthrough) ProcessFrame(_ context.Context, f frame.Frame, dir Direction) error {
	return p.PushFrame(f, dir)
}
