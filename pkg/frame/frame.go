// Package frame defines the typed message units that flow through a voxpipe
// pipeline.
//
// A Frame is an immutable value created by one pipeline stage and consumed by
// the next. Stages never mutate frames they did not create; aggregators build
// new frames instead of editing in place. Every frame is self-describing via
// [Frame.Kind], so a stage can recognise — and forward — frame types it does
// not specifically handle.
//
// Frames fall into three families:
//
//   - Data frames carry payload (audio, text, transcriptions, LLM messages).
//     They are delivered in FIFO order through each stage's input queue.
//   - Control frames mark in-band lifecycle boundaries (start/end of the
//     pipeline, start/end of a TTS utterance or LLM response). They travel
//     through the same queues as data frames so they stay ordered relative
//     to the payload they delimit.
//   - System frames ([StartInterruptionFrame], [StopInterruptionFrame],
//     [CancelFrame], [ErrorFrame]) are delivered out-of-band, ahead of any
//     queued data frame.
//
// Use [IsControl] and [IsSystem] to classify a frame without enumerating
// concrete types.
package frame

// Frame is the atomic message unit moving between pipeline stages.
type Frame interface {
	// Kind returns the frame's type name for logging and metrics
	// (e.g. "AudioRawFrame").
	Kind() string
}

// controlMarker tags in-band lifecycle frames. Embed it to mark a frame type
// as control.
type controlMarker struct{}

func (controlMarker) control() {}

// systemMarker tags out-of-band frames that jump stage input queues.
type systemMarker struct{}

func (systemMarker) system() {}

// IsControl reports whether f is an in-band lifecycle frame that every stage
// must forward even without specific handling.
func IsControl(f Frame) bool {
	_, ok := f.(interface{ control() })
	return ok
}

// IsSystem reports whether f is delivered out-of-band, bypassing stage input
// queues.
func IsSystem(f Frame) bool {
	_, ok := f.(interface{ system() })
	return ok
}

// Message is a single entry in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name optionally identifies the participant in multi-speaker contexts.
	Name string `json:"name,omitempty"`
}
