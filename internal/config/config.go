// Package config provides the configuration schema, loader, and provider
// registry for the voxpipe server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to the slog level, defaulting to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SpawnStrategy selects how bot sessions execute.
type SpawnStrategy string

const (
	// SpawnGoroutine runs sessions in-process.
	SpawnGoroutine SpawnStrategy = "goroutine"

	// SpawnSubprocess re-invokes the server binary per session, isolating
	// sessions from each other and from the server.
	SpawnSubprocess SpawnStrategy = "subprocess"
)

// IsValid reports whether s is a recognised spawn strategy.
func (s SpawnStrategy) IsValid() bool {
	return s == SpawnGoroutine || s == SpawnSubprocess
}

// Config is the root configuration, loaded from YAML via [Load] or
// [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Room      RoomConfig      `yaml:"room"`
	Providers ProvidersConfig `yaml:"providers"`
	Bot       BotConfig       `yaml:"bot"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":7860").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HostWhitelist restricts which Host headers are served. Empty means all.
	// Overridable via HOST_WHITELIST (comma-separated).
	HostWhitelist []string `yaml:"host_whitelist"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RoomConfig points at the external room service.
type RoomConfig struct {
	// APIURL is the room service base URL.
	APIURL string `yaml:"api_url"`

	// APIKey authenticates against the room service. Overridable via
	// ROOM_API_KEY.
	APIKey string `yaml:"api_key"`

	// Expiry is the lifetime of created rooms and tokens. Zero means the
	// client default (30 minutes).
	Expiry time.Duration `yaml:"expiry"`
}

// ProvidersConfig declares which provider implementation backs each pipeline
// stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field looks up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai",
	// "whisper", "elevenlabs", "silero").
	Name string `yaml:"name"`

	// APIKey is the provider API key, if any. The standard env overrides
	// (OPENAI_API_KEY, ELEVENLABS_API_KEY) apply.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini")
	// or a model file path for local engines.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`

	// Fallback names a secondary provider tried when this one fails. The
	// pair is wrapped in a circuit-breaker failover chain at startup.
	// Fallbacks do not nest.
	Fallback *ProviderEntry `yaml:"fallback"`
}

// BotConfig holds the session spawning defaults.
type BotConfig struct {
	// Default is the bot name used when a join request names none.
	Default string `yaml:"default"`

	// Strategy selects goroutine or subprocess execution.
	Strategy SpawnStrategy `yaml:"strategy"`

	// MaxPerRoom caps concurrent bots per room. Zero means the manager
	// default (10).
	MaxPerRoom int `yaml:"max_per_room"`

	// Language is the default greeting/transcription language tag.
	Language string `yaml:"language"`

	// Voice is the default TTS voice identifier.
	Voice string `yaml:"voice"`

	// SystemPrompt seeds the conversation when a join request carries no
	// messages.
	SystemPrompt string `yaml:"system_prompt"`

	// VADEnabled inserts the VAD stage into spawned pipelines.
	VADEnabled bool `yaml:"vad_enabled"`

	// AllowInterruptions lets user speech cancel in-flight responses.
	AllowInterruptions bool `yaml:"allow_interruptions"`

	// AddWAVHeader wraps outgoing WebSocket audio chunks in a RIFF header.
	AddWAVHeader bool `yaml:"add_wav_header"`

	// AudioOutEnabled writes synthesised audio back to clients.
	AudioOutEnabled bool `yaml:"audio_out_enabled"`
}
