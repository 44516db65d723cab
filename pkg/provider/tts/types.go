package tts

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS backend this voice belongs to.
	Provider string

	// Language is the primary language of the voice, when known.
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent,
	// category, and so on).
	Metadata map[string]string
}
