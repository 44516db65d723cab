package vad

// Smoother converts per-frame speech probabilities into start/continue/end
// events with hysteresis, shared by every engine implementation. It requires
// a run of consecutive speech frames before reporting SpeechStart and a run
// of silence frames before SpeechEnd, which filters out clicks and short
// pauses inside an utterance.
//
// Not goroutine-safe; confine to the session's processing goroutine.
type Smoother struct {
	speechThreshold  float64
	silenceThreshold float64
	startFrames      int
	endFrames        int

	speaking   bool
	speechRun  int
	silenceRun int
}

// NewSmoother creates a smoother. startFrames and endFrames are the runs of
// consecutive frames required to open and close a speech segment; values
// below 1 are clamped to 1.
func NewSmoother(cfg Config, startFrames, endFrames int) *Smoother {
	if startFrames < 1 {
		startFrames = 1
	}
	if endFrames < 1 {
		endFrames = 1
	}
	return &Smoother{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		startFrames:      startFrames,
		endFrames:        endFrames,
	}
}

// Feed consumes one frame's speech probability and returns the resulting
// event.
func (s *Smoother) Feed(prob float64) Event {
	ev := Event{Probability: prob}

	switch {
	case prob >= s.speechThreshold:
		s.silenceRun = 0
		s.speechRun++
		if !s.speaking {
			if s.speechRun >= s.startFrames {
				s.speaking = true
				ev.Type = SpeechStart
				return ev
			}
			ev.Type = Silence
			return ev
		}
		ev.Type = SpeechContinue
		return ev

	case prob < s.silenceThreshold:
		s.speechRun = 0
		if s.speaking {
			s.silenceRun++
			if s.silenceRun >= s.endFrames {
				s.speaking = false
				s.silenceRun = 0
				ev.Type = SpeechEnd
				return ev
			}
			ev.Type = SpeechContinue
			return ev
		}
		ev.Type = Silence
		return ev

	default:
		// Between the thresholds: hold the current state.
		if s.speaking {
			ev.Type = SpeechContinue
		} else {
			ev.Type = Silence
		}
		return ev
	}
}

// Reset clears all smoothing state.
func (s *Smoother) Reset() {
	s.speaking = false
	s.speechRun = 0
	s.silenceRun = 0
}
