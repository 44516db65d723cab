package aggregate

import (
	"context"
	"strings"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// UserAggregator turns committed transcriptions into user turns.
//
// It sits between the recognition stage and the model stage. Speaking-state
// frames from the VAD stage bracket a turn: transcriptions arriving while the
// user speaks are buffered, and the turn is committed when the user stops.
// Transcriptions that arrive after the stop frame (batch recognisers lag the
// VAD by design) commit immediately. Committing appends the user message to
// the shared Conversation and pushes a fresh history snapshot downstream to
// trigger generation.
type UserAggregator struct {
	pipeline.BaseProcessor

	conv *Conversation

	// mu guards the turn state; interruption frames arrive on a different
	// goroutine than queued frames.
	mu       sync.Mutex
	speaking bool
	parts    []string
}

var _ pipeline.Processor = (*UserAggregator)(nil)

// NewUser creates a user-side aggregator over the shared conversation.
func NewUser(conv *Conversation) *UserAggregator {
	a := &UserAggregator{conv: conv}
	a.InitName("user_aggregator")
	return a
}

// ProcessFrame implements pipeline.Processor.
func (a *UserAggregator) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.UserStartedSpeakingFrame:
		a.mu.Lock()
		a.speaking = true
		a.mu.Unlock()

	case frame.UserStoppedSpeakingFrame:
		a.mu.Lock()
		a.speaking = false
		commit := len(a.parts) > 0
		a.mu.Unlock()
		if commit {
			a.commit()
		}

	case frame.TranscriptionFrame:
		a.mu.Lock()
		a.parts = append(a.parts, tf.Text)
		commit := !a.speaking
		a.mu.Unlock()
		// Forward the transcription before any turn commit so downstream
		// consumers (transcript feeds) see it ahead of the generation run.
		if err := a.PushFrame(f, dir); err != nil {
			return err
		}
		if commit {
			a.commit()
		}
		return nil

	case frame.InterimTranscriptionFrame:
		// Interim results never enter the conversation.

	case frame.LLMMessagesFrame:
		// Direct injection (e.g. the connect-time greeting): append to the
		// history and trigger generation with the full context.
		a.conv.Append(tf.Messages...)
		return a.PushFrame(frame.LLMMessagesFrame{Messages: a.conv.Snapshot()}, pipeline.Downstream)

	case frame.LLMMessagesAppendFrame:
		a.conv.Append(tf.Messages...)
		return nil

	case frame.LLMMessagesUpdateFrame:
		a.conv.Replace(tf.Messages)
		return nil

	case frame.StartInterruptionFrame:
		// The user is talking over the bot; drop any half-built turn so the
		// next commit reflects only what they say now.
		a.mu.Lock()
		a.parts = nil
		a.mu.Unlock()
	}

	return a.PushFrame(f, dir)
}

// commit closes the current user turn and triggers generation.
func (a *UserAggregator) commit() {
	a.mu.Lock()
	text := strings.TrimSpace(strings.Join(a.parts, " "))
	a.parts = nil
	a.mu.Unlock()
	if text == "" {
		return
	}

	a.conv.Append(frame.Message{Role: "user", Content: text})
	_ = a.PushFrame(frame.LLMMessagesFrame{Messages: a.conv.Snapshot()}, pipeline.Downstream)
}
