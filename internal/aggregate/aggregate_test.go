package aggregate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// sink records the frames pushed out of the aggregator under test.
type sink struct {
	pipeline.BaseProcessor

	mu     sync.Mutex
	frames []frame.Frame
}

func newSink() *sink {
	s := &sink{}
	s.InitName("sink")
	return s
}

func (s *sink) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return s.PushFrame(f, dir)
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *sink) seen() []frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// messagesFrames extracts every LLMMessagesFrame the sink saw.
func (s *sink) messagesFrames() []frame.LLMMessagesFrame {
	var out []frame.LLMMessagesFrame
	for _, f := range s.seen() {
		if mf, ok := f.(frame.LLMMessagesFrame); ok {
			out = append(out, mf)
		}
	}
	return out
}

// run drives batches of frames through stage → sink and waits for completion.
// Interruption frames travel out of band, so each batch is allowed to settle
// before the next one is queued; ordering across batches is guaranteed,
// ordering within a batch follows the runtime's own rules.
func run(t *testing.T, stage pipeline.Processor, out *sink, batches ...[]frame.Frame) {
	t.Helper()
	task := pipeline.NewTask(pipeline.New(stage, out), pipeline.Params{})
	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(context.Background()) }()

	for _, batch := range batches {
		if err := task.QueueFrames(batch...); err != nil {
			t.Fatalf("QueueFrames: %v", err)
		}
		settle(t, out)
	}
	if err := task.QueueFrame(frame.EndFrame{}); err != nil {
		t.Fatalf("queue EndFrame: %v", err)
	}
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("task did not finish")
	}
}

// settle polls until the sink's frame count stops changing.
func settle(t *testing.T, out *sink) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	last, stable := out.count(), 0
	for stable < 10 {
		if time.Now().After(deadline) {
			t.Fatal("sink never settled")
		}
		time.Sleep(5 * time.Millisecond)
		if n := out.count(); n == last {
			stable++
		} else {
			last, stable = n, 0
		}
	}
}

// ─── user aggregator ─────────────────────────────────────────────────────────

func TestUser_CommitsTurnOnStoppedSpeaking(t *testing.T) {
	t.Parallel()

	conv := NewConversation(frame.Message{Role: "system", Content: "be brief"})
	out := newSink()
	run(t, NewUser(conv), out, []frame.Frame{
		frame.UserStartedSpeakingFrame{},
		frame.TranscriptionFrame{Text: "turn on"},
		frame.TranscriptionFrame{Text: "the lights"},
		frame.UserStoppedSpeakingFrame{},
	})

	mfs := out.messagesFrames()
	if len(mfs) != 1 {
		t.Fatalf("got %d LLMMessagesFrames, want 1", len(mfs))
	}
	msgs := mfs[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("snapshot = %d messages, want system + user", len(msgs))
	}
	if msgs[1].Role != "user" || msgs[1].Content != "turn on the lights" {
		t.Errorf("user turn = %+v", msgs[1])
	}
	if conv.Len() != 2 {
		t.Errorf("conversation length = %d, want 2", conv.Len())
	}
}

func TestUser_LateTranscriptionCommitsImmediately(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	// Recognition output lands after the stop frame, as batch engines do.
	run(t, NewUser(conv), out, []frame.Frame{
		frame.UserStartedSpeakingFrame{},
		frame.UserStoppedSpeakingFrame{},
		frame.TranscriptionFrame{Text: "hello there"},
	})

	mfs := out.messagesFrames()
	if len(mfs) != 1 {
		t.Fatalf("got %d LLMMessagesFrames, want 1", len(mfs))
	}
	if got := mfs[0].Messages[0].Content; got != "hello there" {
		t.Errorf("turn = %q", got)
	}
}

func TestUser_InterimNeverEntersContext(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewUser(conv), out, []frame.Frame{
		frame.InterimTranscriptionFrame{Text: "hel"},
		frame.InterimTranscriptionFrame{Text: "hello th"},
	})

	if got := out.messagesFrames(); len(got) != 0 {
		t.Errorf("interim results triggered %d generations", len(got))
	}
	if conv.Len() != 0 {
		t.Errorf("conversation length = %d, want 0", conv.Len())
	}
}

func TestUser_InterruptionDropsPartialTurn(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewUser(conv), out,
		[]frame.Frame{
			frame.UserStartedSpeakingFrame{},
			frame.TranscriptionFrame{Text: "ignore this"},
		},
		[]frame.Frame{frame.StartInterruptionFrame{}},
		[]frame.Frame{
			frame.UserStartedSpeakingFrame{},
			frame.TranscriptionFrame{Text: "actually do that"},
			frame.UserStoppedSpeakingFrame{},
		},
	)

	mfs := out.messagesFrames()
	if len(mfs) != 1 {
		t.Fatalf("got %d LLMMessagesFrames, want 1", len(mfs))
	}
	last := mfs[len(mfs)-1].Messages
	if got := last[len(last)-1].Content; got != "actually do that" {
		t.Errorf("committed turn = %q, pre-interruption text must be dropped", got)
	}
}

func TestUser_DirectMessageInjection(t *testing.T) {
	t.Parallel()

	conv := NewConversation(frame.Message{Role: "system", Content: "sys"})
	out := newSink()
	run(t, NewUser(conv), out, []frame.Frame{
		frame.LLMMessagesFrame{Messages: []frame.Message{
			{Role: "user", Content: "Please introduce yourself first."},
		}},
	})

	mfs := out.messagesFrames()
	if len(mfs) != 1 {
		t.Fatalf("got %d LLMMessagesFrames, want 1", len(mfs))
	}
	// The pushed snapshot carries the full context, not just the injection.
	if len(mfs[0].Messages) != 2 {
		t.Errorf("snapshot = %d messages, want system + injected", len(mfs[0].Messages))
	}
}

func TestUser_AppendAndUpdateFrames(t *testing.T) {
	t.Parallel()

	conv := NewConversation(frame.Message{Role: "system", Content: "sys"})
	out := newSink()
	run(t, NewUser(conv), out, []frame.Frame{
		frame.LLMMessagesAppendFrame{Messages: []frame.Message{
			{Role: "user", Content: "extra"},
		}},
	})
	if conv.Len() != 2 {
		t.Errorf("after append: length = %d, want 2", conv.Len())
	}
	if got := out.messagesFrames(); len(got) != 0 {
		t.Errorf("append triggered %d generations, want 0", len(got))
	}

	out2 := newSink()
	run(t, NewUser(conv), out2, []frame.Frame{
		frame.LLMMessagesUpdateFrame{Messages: []frame.Message{
			{Role: "system", Content: "replaced"},
		}},
	})
	if conv.Len() != 1 {
		t.Errorf("after update: length = %d, want 1", conv.Len())
	}
}

// ─── assistant aggregator ────────────────────────────────────────────────────

func TestAssistant_CommitsResponse(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewAssistant(conv), out, []frame.Frame{
		frame.LLMFullResponseStartFrame{},
		frame.TextFrame{Text: "The lights "},
		frame.TextFrame{Text: "are on."},
		frame.LLMFullResponseEndFrame{},
	})

	msgs := conv.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("conversation = %d messages, want 1", len(msgs))
	}
	if msgs[0].Role != "assistant" || msgs[0].Content != "The lights are on." {
		t.Errorf("assistant turn = %+v", msgs[0])
	}
}

func TestAssistant_InterruptionDiscardsPartialText(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewAssistant(conv), out,
		[]frame.Frame{
			frame.LLMFullResponseStartFrame{},
			frame.TextFrame{Text: "He"},
			frame.TextFrame{Text: "llo"},
		},
		[]frame.Frame{frame.StartInterruptionFrame{}},
	)

	if got := conv.Snapshot(); len(got) != 0 {
		t.Fatalf("interrupted response committed %d messages: %v", len(got), got)
	}
}

func TestAssistant_NextResponseCleanAfterInterruption(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewAssistant(conv), out,
		[]frame.Frame{
			frame.LLMFullResponseStartFrame{},
			frame.TextFrame{Text: "cut off mid"},
		},
		[]frame.Frame{frame.StartInterruptionFrame{}},
		[]frame.Frame{
			frame.StopInterruptionFrame{},
			frame.LLMFullResponseStartFrame{},
			frame.TextFrame{Text: "Fresh answer."},
			frame.LLMFullResponseEndFrame{},
		},
	)

	msgs := conv.Snapshot()
	if len(msgs) != 1 {
		t.Fatalf("conversation = %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "Fresh answer." {
		t.Errorf("turn = %q, discarded text must not leak into the next turn", msgs[0].Content)
	}
}

func TestAssistant_EmptyInterruptionPairIsIdempotent(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewAssistant(conv), out, []frame.Frame{
		frame.StartInterruptionFrame{},
		frame.StopInterruptionFrame{},
		frame.StartInterruptionFrame{},
		frame.StopInterruptionFrame{},
	})

	if conv.Len() != 0 {
		t.Errorf("empty interruptions added %d messages", conv.Len())
	}
}

func TestAssistant_TextOutsideResponseIgnored(t *testing.T) {
	t.Parallel()

	conv := NewConversation()
	out := newSink()
	run(t, NewAssistant(conv), out, []frame.Frame{
		frame.TextFrame{Text: "stray"},
		frame.LLMFullResponseEndFrame{},
	})

	if conv.Len() != 0 {
		t.Errorf("stray text committed: %v", conv.Snapshot())
	}
}

// ─── conversation ────────────────────────────────────────────────────────────

func TestConversation_SnapshotIsCopy(t *testing.T) {
	t.Parallel()

	conv := NewConversation(frame.Message{Role: "system", Content: "a"})
	snap := conv.Snapshot()
	snap[0].Content = "mutated"

	if conv.Snapshot()[0].Content != "a" {
		t.Error("snapshot aliases internal state")
	}
}
