package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp"},
	"stt": {"whisper", "whisper-server"},
	"tts": {"elevenlabs"},
	"vad": {"silero", "energy"},
}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOM_API_KEY"); v != "" {
		cfg.Room.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Providers.LLM.APIKey == "" {
		cfg.Providers.LLM.APIKey = v
	}
	if v := os.Getenv("ELEVENLABS_API_KEY"); v != "" && cfg.Providers.TTS.APIKey == "" {
		cfg.Providers.TTS.APIKey = v
	}
	if v := os.Getenv("HOST_WHITELIST"); v != "" {
		hosts := strings.Split(v, ",")
		for i := range hosts {
			hosts[i] = strings.TrimSpace(hosts[i])
		}
		cfg.Server.HostWhitelist = hosts
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Bot.Strategy != "" && !cfg.Bot.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("bot.strategy %q is invalid; valid values: goroutine, subprocess", cfg.Bot.Strategy))
	}
	if cfg.Bot.MaxPerRoom < 0 {
		errs = append(errs, fmt.Errorf("bot.max_per_room %d must not be negative", cfg.Bot.MaxPerRoom))
	}
	if cfg.Room.Expiry < 0 {
		errs = append(errs, fmt.Errorf("room.expiry %s must not be negative", cfg.Room.Expiry))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; bots will not be able to generate responses")
	}
	if cfg.Bot.VADEnabled && cfg.Providers.VAD.Name == "" {
		errs = append(errs, errors.New("bot.vad_enabled requires providers.vad"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
