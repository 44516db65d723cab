package aggregate

import (
	"context"
	"strings"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// AssistantAggregator collects the bot's reply into an assistant turn.
//
// It sits at the tail of the pipeline, after the output transport, so the
// text it sees is the text that actually went out. Response frames bracket a
// turn; text between them accumulates and is appended to the shared
// Conversation when the response ends. An interruption mid-response drops the
// partial accumulation: the reply was cut off, so the half-sentence never
// becomes a canonical assistant turn.
type AssistantAggregator struct {
	pipeline.BaseProcessor

	conv *Conversation

	mu         sync.Mutex
	collecting bool
	parts      []string
}

var _ pipeline.Processor = (*AssistantAggregator)(nil)

// NewAssistant creates an assistant-side aggregator over the shared
// conversation.
func NewAssistant(conv *Conversation) *AssistantAggregator {
	a := &AssistantAggregator{conv: conv}
	a.InitName("assistant_aggregator")
	return a
}

// ProcessFrame implements pipeline.Processor.
func (a *AssistantAggregator) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.LLMFullResponseStartFrame:
		a.mu.Lock()
		a.collecting = true
		a.parts = nil
		a.mu.Unlock()

	case frame.TextFrame:
		a.mu.Lock()
		if a.collecting {
			a.parts = append(a.parts, tf.Text)
		}
		a.mu.Unlock()

	case frame.LLMFullResponseEndFrame:
		a.commit()

	case frame.StartInterruptionFrame:
		a.discard()
	}

	return a.PushFrame(f, dir)
}

// discard drops the partial turn without touching the conversation.
func (a *AssistantAggregator) discard() {
	a.mu.Lock()
	a.parts = nil
	a.collecting = false
	a.mu.Unlock()
}

// commit appends the accumulated assistant turn, if any, and resets.
func (a *AssistantAggregator) commit() {
	a.mu.Lock()
	text := strings.TrimSpace(strings.Join(a.parts, ""))
	a.parts = nil
	a.collecting = false
	a.mu.Unlock()
	if text == "" {
		return
	}
	a.conv.Append(frame.Message{Role: "assistant", Content: text})
}
