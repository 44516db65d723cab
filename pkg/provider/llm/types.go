package llm

// Message is a single entry in a model conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name for multi-speaker contexts.
	Name string
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input plus output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens one completion can generate.
	MaxOutputTokens int

	// SupportsVision indicates the model accepts image inputs.
	SupportsVision bool

	// SupportsStreaming indicates streaming completion support.
	SupportsStreaming bool
}
