// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech detector (the Silero ONNX model or
// a simple energy detector) as a stateful, per-stream session. Each session
// keeps its own smoothing history so concurrent audio streams are processed
// independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the low-latency stage that drives
// interruption.
//
// Engines must be safe for concurrent use across sessions. A single
// SessionHandle must not be shared across goroutines unless the
// implementation documents otherwise.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the PCM frames
	// passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds. Most
	// detectors operate on fixed frame sizes; ProcessFrame returns an error
	// for a frame of the wrong size.
	FrameSizeMs int

	// SpeechThreshold is the probability above which a frame counts as
	// speech. Range [0.0, 1.0]; typical 0.5.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which an active speech
	// segment is considered ending. Must be <= SpeechThreshold; typical 0.35.
	SilenceThreshold float64
}

// SessionHandle is an active VAD session for a single audio stream. Each
// session maintains its own detection state; Reset clears it without closing
// the session.
type SessionHandle interface {
	// ProcessFrame analyses one audio frame of raw little-endian 16-bit PCM
	// and returns the detection result. Must not block; it is called
	// synchronously on the audio path.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated detection state (smoothing counters, model
	// hidden state) without closing the session.
	Reset()

	// Close releases session resources. Calling Close more than once is
	// safe.
	Close() error
}

// Engine is the factory for VAD sessions. Multiple goroutines may call
// NewSession concurrently.
type Engine interface {
	// NewSession creates a session with the given configuration, immediately
	// ready to accept audio frames. Returns an error for an invalid
	// configuration or when resources cannot be allocated.
	NewSession(cfg Config) (SessionHandle, error)
}
