package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxpipe/voxpipe/internal/bot"
	"github.com/voxpipe/voxpipe/internal/config"
)

// runBot runs a single bot session. It is the subprocess side of the
// subprocess spawn strategy: the server re-invokes its own binary as
//
//	voxpipe bot -config <path> -bot-config <json>
//
// and manages the process through the task manager. The process exits when
// the session ends, the client disconnects, or a termination signal arrives.
func runBot(args []string) int {
	fs := flag.NewFlagSet("bot", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	botConfig := fs.String("bot-config", "", "JSON-encoded bot session configuration")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxpipe bot: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	var botCfg bot.Config
	if err := json.Unmarshal([]byte(*botConfig), &botCfg); err != nil {
		slog.Error("invalid -bot-config", "err", err)
		return 2
	}
	if botCfg.RoomURL == "" {
		slog.Error("bot config carries no room URL")
		return 2
	}

	// Providers are constructed fresh in each session process. Local engines
	// (whisper, silero) load their models here rather than in the server.
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	deps, err := buildDeps(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bot.NewWebSocket(botCfg, deps)
	slog.Info("bot session starting",
		"bot", botCfg.Name, "bot_id", botCfg.BotID, "room_url", botCfg.RoomURL)

	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("bot session failed", "bot_id", botCfg.BotID, "err", err)
		return 1
	}
	slog.Info("bot session finished", "bot_id", botCfg.BotID)
	return 0
}
