package stt

import "time"

// Transcript is a speech-to-text result. Both partial (interim) and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal distinguishes committed results from interim guesses.
	IsFinal bool

	// Confidence is the overall confidence score (0.0 to 1.0). Zero when the
	// backend does not report confidence.
	Confidence float64

	// Language is the detected or configured language of the utterance.
	Language string

	// Start marks when the utterance began, relative to session start.
	Start time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}
