// Command voxpipe is the voice bot platform server. It serves the room and
// bot-spawning HTTP API and, when invoked with the "bot" subcommand, runs a
// single bot session for the subprocess spawn strategy.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voxpipe/voxpipe/internal/bot"
	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/health"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/resilience"
	"github.com/voxpipe/voxpipe/internal/room"
	"github.com/voxpipe/voxpipe/internal/server"
	"github.com/voxpipe/voxpipe/internal/taskmgr"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	"github.com/voxpipe/voxpipe/pkg/provider/llm/anyllm"
	"github.com/voxpipe/voxpipe/pkg/provider/llm/openai"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
	"github.com/voxpipe/voxpipe/pkg/provider/stt/whisper"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
	"github.com/voxpipe/voxpipe/pkg/provider/tts/elevenlabs"
	"github.com/voxpipe/voxpipe/pkg/provider/vad"
	"github.com/voxpipe/voxpipe/pkg/provider/vad/energy"
	"github.com/voxpipe/voxpipe/pkg/provider/vad/silero"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "bot" {
		os.Exit(runBot(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxpipe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxpipe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("voxpipe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxpipe"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	deps, err := buildDeps(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Wiring ────────────────────────────────────────────────────────────────
	var roomOpts []room.Option
	if cfg.Room.Expiry > 0 {
		roomOpts = append(roomOpts, room.WithExpiry(cfg.Room.Expiry))
	}
	rooms := room.New(cfg.Room.APIURL, cfg.Room.APIKey, roomOpts...)

	var mgrOpts []taskmgr.Option
	if cfg.Bot.MaxPerRoom > 0 {
		mgrOpts = append(mgrOpts, taskmgr.WithMaxBotsPerRoom(cfg.Bot.MaxPerRoom))
	}
	mgr := taskmgr.New(mgrOpts...)

	bots := bot.NewRegistry()
	if err := bots.Register("voice", func(c bot.Config) (bot.Bot, error) {
		return bot.NewWebSocket(c, deps), nil
	}); err != nil {
		slog.Error("failed to register bots", "err", err)
		return 1
	}

	spawner, err := buildSpawner(cfg, bots, *configPath)
	if err != nil {
		slog.Error("failed to build spawner", "err", err)
		return 1
	}

	checks := health.New(health.Checker{
		Name: "providers",
		Check: func(context.Context) error {
			if deps.STT == nil || deps.LLM == nil || deps.TTS == nil {
				return errors.New("stt, llm, and tts providers are required")
			}
			return nil
		},
	})

	srv := server.New(server.Params{
		Config:      cfg.Server,
		BotDefaults: cfg.Bot,
		Rooms:       rooms,
		Manager:     mgr,
		Spawner:     spawner,
		Health:      checks,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", httpSrv.Addr)
		if cfg.Server.TLS != nil {
			errCh <- httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
			return
		}
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := mgr.Cleanup(shutdownCtx); err != nil {
		slog.Warn("bot cleanup error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// buildSpawner returns the unit factory for the configured spawn strategy.
func buildSpawner(cfg *config.Config, bots *bot.Registry, configPath string) (server.Spawner, error) {
	strategy := cfg.Bot.Strategy
	if strategy == "" {
		strategy = config.SpawnGoroutine
	}

	switch strategy {
	case config.SpawnGoroutine:
		return func(c bot.Config) (taskmgr.Unit, error) {
			b, err := bots.New(c)
			if err != nil {
				return nil, err
			}
			return taskmgr.NewGoroutineUnit(b.Run), nil
		}, nil

	case config.SpawnSubprocess:
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		return func(c bot.Config) (taskmgr.Unit, error) {
			// Validate the name before paying for a process.
			if _, err := bots.New(c); err != nil {
				return nil, err
			}
			payload, err := json.Marshal(c)
			if err != nil {
				return nil, fmt.Errorf("encode bot config: %w", err)
			}
			return taskmgr.NewProcessUnit(exe, "bot",
				"-config", configPath,
				"-bot-config", string(payload),
			), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown spawn strategy %q", strategy)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The native openai adapter keeps full streaming control; every other
	// vendor goes through any-llm with the shared APIKey/BaseURL pattern.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}
	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})
	reg.RegisterSTT("whisper-server", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.ServerOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithServerLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────
	reg.RegisterVAD("silero", func(entry config.ProviderEntry) (vad.Engine, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []silero.Option
		if lib := optString(entry.Options, "library_path"); lib != "" {
			opts = append(opts, silero.WithLibraryPath(lib))
		}
		return silero.NewEngine(modelPath, opts...)
	})
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.NewEngine(), nil
	})
}

// buildDeps instantiates the providers named in cfg. Constructor failures
// (missing model file, missing API key) are fatal.
func buildDeps(cfg *config.Config, reg *config.Registry) (bot.Deps, error) {
	var deps bot.Deps

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return deps, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		if fb := cfg.Providers.LLM.Fallback; fb != nil {
			fp, err := reg.CreateLLM(*fb)
			if err != nil {
				return deps, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			fo := resilience.NewLLMFailover(name, p, resilience.ChainConfig{})
			fo.Add(fb.Name, fp)
			p = fo
			slog.Info("provider failover enabled", "kind", "llm", "primary", name, "fallback", fb.Name)
		}
		deps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return deps, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		if fb := cfg.Providers.STT.Fallback; fb != nil {
			fp, err := reg.CreateSTT(*fb)
			if err != nil {
				return deps, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
			}
			fo := resilience.NewSTTFailover(name, p, resilience.ChainConfig{})
			fo.Add(fb.Name, fp)
			p = fo
			slog.Info("provider failover enabled", "kind", "stt", "primary", name, "fallback", fb.Name)
		}
		deps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return deps, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		if fb := cfg.Providers.TTS.Fallback; fb != nil {
			fp, err := reg.CreateTTS(*fb)
			if err != nil {
				return deps, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
			}
			fo := resilience.NewTTSFailover(name, p, resilience.ChainConfig{})
			fo.Add(fb.Name, fp)
			p = fo
			slog.Info("provider failover enabled", "kind", "tts", "primary", name, "fallback", fb.Name)
		}
		deps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name)
	}
	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if err != nil {
			return deps, fmt.Errorf("create vad provider %q: %w", name, err)
		}
		deps.VAD = p
		slog.Info("provider created", "kind", "vad", "name", name)
	}

	return deps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level.Level()}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
