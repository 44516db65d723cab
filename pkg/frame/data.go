package frame

import (
	"fmt"
	"time"
)

// AudioRawFrame carries a chunk of raw PCM audio.
type AudioRawFrame struct {
	// Audio is little-endian PCM sample data.
	Audio []byte

	// SampleRate in Hz (e.g. 16000 for ASR input, 24000 for TTS output).
	SampleRate int

	// Channels is the channel count: 1 mono, 2 stereo.
	Channels int

	// SampleWidth is the bytes per sample (2 for int16 PCM).
	SampleWidth int
}

func (AudioRawFrame) Kind() string { return "AudioRawFrame" }

// Samples returns the number of PCM samples per channel in the frame.
func (f AudioRawFrame) Samples() int {
	if f.Channels <= 0 || f.SampleWidth <= 0 {
		return 0
	}
	return len(f.Audio) / (f.Channels * f.SampleWidth)
}

// Duration returns the playback duration of the frame.
func (f AudioRawFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// UserAudioRawFrame is audio captured from a specific participant.
type UserAudioRawFrame struct {
	AudioRawFrame

	// UserID is the transport-specific participant identifier.
	UserID string
}

func (UserAudioRawFrame) Kind() string { return "UserAudioRawFrame" }

// TTSAudioRawFrame is synthesised speech audio produced by the TTS stage.
type TTSAudioRawFrame struct {
	AudioRawFrame
}

func (TTSAudioRawFrame) Kind() string { return "TTSAudioRawFrame" }

// TextFrame carries a text fragment, such as one LLM token delta or one
// sentence handed to TTS.
type TextFrame struct {
	Text string
}

func (TextFrame) Kind() string { return "TextFrame" }

// TranscriptionFrame is a final (authoritative) ASR result for one speech
// segment.
type TranscriptionFrame struct {
	Text string

	// UserID identifies the speaker.
	UserID string

	// Timestamp is the wall-clock time the segment was transcribed, RFC 3339.
	Timestamp string

	// Language is the BCP-47 tag of the recognised language, if reported.
	Language string
}

func (TranscriptionFrame) Kind() string { return "TranscriptionFrame" }

func (f TranscriptionFrame) String() string {
	return fmt.Sprintf("TranscriptionFrame(user: %s, text: %q, ts: %s)", f.UserID, f.Text, f.Timestamp)
}

// InterimTranscriptionFrame is a low-latency partial ASR result. Interim
// results drive responsiveness (e.g. interruption heuristics) but must not be
// aggregated into the conversation history.
type InterimTranscriptionFrame struct {
	Text      string
	UserID    string
	Timestamp string
	Language  string
}

func (InterimTranscriptionFrame) Kind() string { return "InterimTranscriptionFrame" }

// LLMMessagesFrame asks the LLM stage to run a chat completion over the given
// conversation history. The slice is owned by the frame; aggregators build a
// fresh copy for each turn.
type LLMMessagesFrame struct {
	Messages []Message
}

func (LLMMessagesFrame) Kind() string { return "LLMMessagesFrame" }

// LLMMessagesAppendFrame appends messages to the aggregator's current
// conversation context without triggering a completion.
type LLMMessagesAppendFrame struct {
	Messages []Message
}

func (LLMMessagesAppendFrame) Kind() string { return "LLMMessagesAppendFrame" }

// LLMMessagesUpdateFrame replaces the aggregator's conversation context.
type LLMMessagesUpdateFrame struct {
	Messages []Message
}

func (LLMMessagesUpdateFrame) Kind() string { return "LLMMessagesUpdateFrame" }

// TTSSpeakFrame carries text that the TTS stage should speak verbatim,
// bypassing the LLM.
type TTSSpeakFrame struct {
	Text string
}

func (TTSSpeakFrame) Kind() string { return "TTSSpeakFrame" }

// ImageRawFrame carries raw image bytes with pixel geometry.
type ImageRawFrame struct {
	Image  []byte
	Width  int
	Height int

	// Format is the encoding, e.g. "jpeg", "png", or "raw".
	Format string
}

func (ImageRawFrame) Kind() string { return "ImageRawFrame" }

// VisionImageRawFrame is an image paired with an instruction asking the model
// to describe it.
type VisionImageRawFrame struct {
	ImageRawFrame

	Text string
}

func (VisionImageRawFrame) Kind() string { return "VisionImageRawFrame" }

// TransportMessageFrame carries an arbitrary out-of-band message for the
// transport to deliver on its signalling channel.
type TransportMessageFrame struct {
	Message any

	// Urgent messages may be sent ahead of queued audio.
	Urgent bool
}

func (TransportMessageFrame) Kind() string { return "TransportMessageFrame" }
