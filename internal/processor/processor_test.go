package processor

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// ─── harness ─────────────────────────────────────────────────────────────────

type captured struct {
	frame frame.Frame
	dir   pipeline.Direction
}

// recorder is a passthrough stage that remembers every frame it sees, in
// both directions.
type recorder struct {
	pipeline.BaseProcessor

	mu     sync.Mutex
	frames []captured
}

func newRecorder(name string) *recorder {
	r := &recorder{}
	r.InitName(name)
	return r
}

func (r *recorder) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	r.mu.Lock()
	r.frames = append(r.frames, captured{frame: f, dir: dir})
	r.mu.Unlock()
	return r.PushFrame(f, dir)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *recorder) all() []captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]captured, len(r.frames))
	copy(out, r.frames)
	return out
}

// downstream returns frames seen travelling toward the output transport.
func (r *recorder) downstream() []frame.Frame {
	var out []frame.Frame
	for _, c := range r.all() {
		if c.dir == pipeline.Downstream {
			out = append(out, c.frame)
		}
	}
	return out
}

// upstream returns frames seen travelling back toward the input transport.
func (r *recorder) upstream() []frame.Frame {
	var out []frame.Frame
	for _, c := range r.all() {
		if c.dir == pipeline.Upstream {
			out = append(out, c.frame)
		}
	}
	return out
}

func framesOf[T frame.Frame](frames []frame.Frame) []T {
	var out []T
	for _, f := range frames {
		if tf, ok := f.(T); ok {
			out = append(out, tf)
		}
	}
	return out
}

// rig runs a single stage between two recorders: up catches upstream pushes,
// out catches the stage's downstream output.
type rig struct {
	t     *testing.T
	task  *pipeline.Task
	up    *recorder
	out   *recorder
	errCh chan error
}

func startRig(t *testing.T, stage pipeline.Processor, params pipeline.Params) *rig {
	t.Helper()
	r := &rig{
		t:     t,
		up:    newRecorder("up"),
		out:   newRecorder("out"),
		errCh: make(chan error, 1),
	}
	r.task = pipeline.NewTask(pipeline.New(r.up, stage, r.out), params)
	go func() { r.errCh <- r.task.Run(context.Background()) }()
	return r
}

// queue delivers frames and waits for the stage's output to go quiet.
func (r *rig) queue(frames ...frame.Frame) {
	r.t.Helper()
	r.queueRaw(frames...)
	r.settle()
}

// queueRaw delivers frames without waiting; used when output keeps flowing.
func (r *rig) queueRaw(frames ...frame.Frame) {
	r.t.Helper()
	if err := r.task.QueueFrames(frames...); err != nil {
		r.t.Fatalf("QueueFrames: %v", err)
	}
}

func (r *rig) settle() {
	r.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	last, stable := r.out.count(), 0
	for stable < 10 {
		if time.Now().After(deadline) {
			r.t.Fatal("output never settled")
		}
		time.Sleep(5 * time.Millisecond)
		if n := r.out.count(); n == last {
			stable++
		} else {
			last, stable = n, 0
		}
	}
}

// finish ends the task and waits for a clean exit.
func (r *rig) finish() {
	r.t.Helper()
	if err := r.task.QueueFrame(frame.EndFrame{}); err != nil {
		r.t.Fatalf("queue EndFrame: %v", err)
	}
	select {
	case err := <-r.errCh:
		if err != nil {
			r.t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		r.t.Fatal("task did not finish")
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func userAudio(n int) frame.UserAudioRawFrame {
	return frame.UserAudioRawFrame{AudioRawFrame: frame.AudioRawFrame{
		Audio:       make([]byte, n),
		SampleRate:  16000,
		Channels:    1,
		SampleWidth: 2,
	}}
}

// ─── sentence splitting ──────────────────────────────────────────────────────

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		sentences []string
		rest      string
	}{
		{
			name:      "complete sentence with trailing fragment",
			in:        "Hello world. How",
			sentences: []string{"Hello world."},
			rest:      " How",
		},
		{
			name: "terminator without trailing space stays open",
			in:   "How are you?",
			rest: "How are you?",
		},
		{
			name:      "decimal point is not a boundary",
			in:        "Pi is 3.14 exactly. Next",
			sentences: []string{"Pi is 3.14 exactly."},
			rest:      " Next",
		},
		{
			name:      "multiple sentences",
			in:        "One. Two! Three? Four",
			sentences: []string{"One.", "Two!", "Three?"},
			rest:      " Four",
		},
		{
			name:      "cjk terminator needs no space",
			in:        "你好。世界",
			sentences: []string{"你好。"},
			rest:      "世界",
		},
		{
			name: "empty input",
			in:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sentences, rest := splitSentences(tt.in)
			if !reflect.DeepEqual(sentences, tt.sentences) {
				t.Errorf("sentences = %q, want %q", sentences, tt.sentences)
			}
			if rest != tt.rest {
				t.Errorf("rest = %q, want %q", rest, tt.rest)
			}
		})
	}
}
