// Package whisper provides whisper.cpp-backed STT providers.
//
// Two variants exist:
//
//   - Native loads a ggml model through the whisper.cpp CGO bindings and runs
//     inference in-process. The whisper.cpp static library (libwhisper.a) and
//     headers must be available at link time via LIBRARY_PATH and
//     C_INCLUDE_PATH.
//   - Server talks to a running whisper-server binary over its REST API
//     (POST /inference) and needs no CGO.
//
// whisper.cpp is a batch engine, so neither variant produces true low-latency
// partials. Incoming PCM is buffered and segmented by an energy-based silence
// detector; each completed utterance is transcribed as one batch, and the
// resulting text is emitted on both the Partials and Finals channels.
package whisper

import "time"

const (
	// bitsPerSample is fixed at 16 for the little-endian signed PCM audio
	// whisper.cpp expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy (in 16-bit PCM
	// units, max 32767) below which a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 700
	defaultMaxBufferDurationMs = 15_000
)

// transcriptChanDepth bounds the partial and final channels so a stalled
// consumer cannot block inference.
const transcriptChanDepth = 64

// warmupDuration is the length of silent audio pushed through a fresh model
// to page in the weights before the first real utterance arrives.
const warmupDuration = 200 * time.Millisecond
