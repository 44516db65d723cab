package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	rtctransport "github.com/voxpipe/voxpipe/internal/transport/webrtc"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// WebRTCBot runs one session over an established WebRTC peer transport,
// typically handed over by the signaling server's join callback.
type WebRTCBot struct {
	lifecycle

	id   string
	cfg  Config
	deps Deps
	t    *rtctransport.Transport
}

var _ Bot = (*WebRTCBot)(nil)

// NewWebRTC creates a bot bound to the given peer transport.
func NewWebRTC(t *rtctransport.Transport, cfg Config, deps Deps) *WebRTCBot {
	id := cfg.BotID
	if id == "" {
		id = uuid.NewString()
	}
	return &WebRTCBot{id: id, cfg: cfg, deps: deps, t: t}
}

// ID implements [Bot].
func (b *WebRTCBot) ID() string { return b.id }

// Run implements [Bot].
func (b *WebRTCBot) Run(ctx context.Context) error {
	if !b.casState(StateInstantiated, StateAwaitingClient) {
		return fmt.Errorf("bot %s: already run", b.id)
	}
	defer b.setState(StateTerminated)
	defer b.t.Close()

	task := assemble(b.cfg, b.deps, b.t.Input(), b.t.Output())

	b.t.OnClientConnected(func(clientID string) {
		b.setState(StateRunning)
		slog.Info("bot: peer connected", "bot_id", b.id, "client_id", clientID)
		if err := greet(task, b.cfg.LLM.Language); err != nil {
			slog.Warn("bot: queue greeting", "bot_id", b.id, "err", err)
		}
	})
	b.t.OnClientDisconnected(func(clientID string) {
		slog.Info("bot: peer disconnected", "bot_id", b.id, "client_id", clientID)
		task.Cancel()
	})

	return pipeline.NewRunner("bot-" + b.id).Run(ctx, task)
}
