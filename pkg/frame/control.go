package frame

// StartFrame is the first frame queued into a pipeline. It carries the fixed
// session configuration every stage needs before processing data. The values
// are set at pipeline construction and do not change mid-session.
type StartFrame struct {
	controlMarker

	// AllowInterruptions enables mid-turn interruption propagation.
	AllowInterruptions bool

	// AudioInSampleRate / AudioInChannels describe inbound transport audio.
	AudioInSampleRate int
	AudioInChannels   int

	// AudioOutSampleRate / AudioOutChannels describe outbound audio. These
	// follow the TTS provider's stream info.
	AudioOutSampleRate int
	AudioOutChannels   int
}

func (StartFrame) Kind() string { return "StartFrame" }

// EndFrame signals a clean end of the session. It travels in-band so it
// flushes behind any queued data; each stage forwards it after finishing its
// own teardown for the turn.
type EndFrame struct {
	controlMarker
}

func (EndFrame) Kind() string { return "EndFrame" }

// TTSStartedFrame marks the start of one synthesised utterance.
type TTSStartedFrame struct {
	controlMarker
}

func (TTSStartedFrame) Kind() string { return "TTSStartedFrame" }

// TTSStoppedFrame marks the end of one synthesised utterance.
type TTSStoppedFrame struct {
	controlMarker
}

func (TTSStoppedFrame) Kind() string { return "TTSStoppedFrame" }

// LLMFullResponseStartFrame marks the start of one assistant response stream.
type LLMFullResponseStartFrame struct {
	controlMarker
}

func (LLMFullResponseStartFrame) Kind() string { return "LLMFullResponseStartFrame" }

// LLMFullResponseEndFrame marks the end of one assistant response stream.
type LLMFullResponseEndFrame struct {
	controlMarker
}

func (LLMFullResponseEndFrame) Kind() string { return "LLMFullResponseEndFrame" }

// UserStartedSpeakingFrame is emitted by the VAD gate when speech begins.
type UserStartedSpeakingFrame struct {
	controlMarker
}

func (UserStartedSpeakingFrame) Kind() string { return "UserStartedSpeakingFrame" }

// UserStoppedSpeakingFrame is emitted by the VAD gate when speech ends.
type UserStoppedSpeakingFrame struct {
	controlMarker
}

func (UserStoppedSpeakingFrame) Kind() string { return "UserStoppedSpeakingFrame" }
