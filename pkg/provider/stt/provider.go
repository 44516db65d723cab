// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp model, a
// whisper-server instance, or a hosted API) behind a uniform streaming
// interface. The central abstraction is SessionHandle: once opened, a session
// accepts raw PCM audio chunks and emits two streams of Transcript values,
// low-latency partials for UI feedback and authoritative finals for the
// conversation context.
//
// Implementations must be safe for concurrent use; one session is opened per
// connected client.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new
// transcription session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the native rate for
	// whisper models; transports resample before the recognition stage.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono. Implementations may
	// downmix stereo internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en", "zh").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open transcription session. It is an interface
// so tests can supply scripted implementations without a live engine.
//
// Callers must call Close when the session is no longer needed; failing to do
// so leaks the provider's internal goroutines. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw little-endian 16-bit PCM for
	// transcription. The chunk must match the StreamConfig audio format.
	// Returns an error after Close.
	SendAudio(chunk []byte) error

	// Partials emits interim Transcript values while an utterance is still in
	// progress. Suitable for activity indicators only; partial text must not
	// enter the conversation context. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed Transcript values, one per completed utterance.
	// Closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and closes both
	// transcript channels. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any STT backend. Multiple sessions may be
// open simultaneously, one per connected client.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// handle is ready to accept audio immediately. The caller owns the handle
	// and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
