// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a synthesis service behind a uniform streaming
// interface. The primary entry point is SynthesizeStream, which accepts a
// channel of text fragments and returns a channel of raw PCM audio bytes as
// they become available, so model output pipes straight into synthesis
// without waiting for the full response text.
//
// Implementations must be safe for concurrent use; multiple synthesis
// requests may run in parallel across sessions.
package tts

import "context"

// StreamInfo describes the PCM format a provider emits. The output transport
// uses it to stamp synthesized audio frames.
type StreamInfo struct {
	// SampleRate is the output sample rate in Hz.
	SampleRate int

	// Channels is the output channel count; synthesis output is mono for
	// every current backend.
	Channels int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel emitting raw 16-bit PCM chunks as they are
	// synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or ctx is cancelled. Callers must drain the
	// channel to avoid blocking the provider's internal goroutines. Errors
	// during synthesis are signalled by closing the channel early; callers
	// check ctx.Err() to distinguish cancellation.
	//
	// voice selects the voice profile; providers return an error from the
	// initial call if the voice is unavailable.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// StreamInfo returns the PCM format of the audio chunks this provider
	// emits. Constant for the provider's lifetime.
	StreamInfo() StreamInfo

	// ListVoices returns the provider's current voice catalogue.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
