// Package bot assembles and runs one conversational session: a transport
// pair around the VAD -> ASR -> LLM -> TTS chain, driven by a pipeline task.
// Bots are created through a [Registry] so the HTTP surface can spawn them by
// name, and expose a coarse lifecycle state for status reporting.
package bot

import (
	"context"
	"sync/atomic"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

// State is the coarse lifecycle state of a bot.
type State int32

const (
	// StateInstantiated means the bot exists but Run has not been called.
	StateInstantiated State = iota
	// StateAwaitingClient means the bot is running and waiting for its peer.
	StateAwaitingClient
	// StateRunning means a client is connected and the pipeline is live.
	StateRunning
	// StateTerminated means the session ended, cleanly or not.
	StateTerminated
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateInstantiated:
		return "instantiated"
	case StateAwaitingClient:
		return "awaiting_client"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// LLMConfig is the model part of a bot configuration.
type LLMConfig struct {
	// Messages seed the conversation context, typically one system prompt.
	Messages []frame.Message `json:"messages,omitempty"`

	// Language selects the greeting language, "zh" or "en". Empty means "en".
	Language string `json:"language,omitempty"`
}

// TTSConfig is the synthesis part of a bot configuration.
type TTSConfig struct {
	// Voice is the provider-specific voice identifier.
	Voice string `json:"voice,omitempty"`
}

// Config is the per-session bot configuration, carried verbatim in the
// bot-join request body.
type Config struct {
	Name    string `json:"name"`
	BotID   string `json:"bot_id,omitempty"`
	RoomURL string `json:"room_url,omitempty"`
	Token   string `json:"token,omitempty"`

	// IsAgent marks the session as agent-driven rather than human-initiated.
	IsAgent bool `json:"is_agent,omitempty"`

	LLM LLMConfig `json:"llm"`
	TTS TTSConfig `json:"tts"`

	// VADEnabled inserts the VAD stage; without it interruptions and turn
	// boundaries rely on transcription timing alone.
	VADEnabled bool `json:"vad_enabled"`

	// AudioOutEnabled controls whether synthesised audio is written to the
	// client. AddWAVHeader wraps each outgoing chunk in a RIFF container
	// (WebSocket transport only).
	AudioOutEnabled bool `json:"audio_out_enabled"`
	AddWAVHeader    bool `json:"add_wav_header"`

	// AllowInterruptions lets user speech cancel an in-flight bot response.
	AllowInterruptions bool `json:"allow_interruptions"`
}

// Deps bundles the inference providers a bot builds its pipeline from.
type Deps struct {
	VAD vad.Engine
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Bot is one runnable conversational session.
type Bot interface {
	// ID returns the bot's unique identifier.
	ID() string

	// State returns the current lifecycle state.
	State() State

	// Run executes the session until the client disconnects, the task ends,
	// or ctx is cancelled. It blocks and may only be called once.
	Run(ctx context.Context) error
}

// lifecycle is the shared state holder embedded by bot implementations.
type lifecycle struct {
	state atomic.Int32
}

func (l *lifecycle) State() State     { return State(l.state.Load()) }
func (l *lifecycle) setState(s State) { l.state.Store(int32(s)) }
func (l *lifecycle) casState(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// introMessage returns the greeting instruction injected when the client
// connects, in the configured language.
func introMessage(language string) frame.Message {
	text := "Please introduce yourself first."
	if language == "zh" {
		text = "请用中文介绍下自己。"
	}
	return frame.Message{Role: "user", Content: text}
}
