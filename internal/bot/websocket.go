package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	wstransport "github.com/voxpipe/voxpipe/internal/transport/websocket"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// WebSocketBot runs one session over a WebSocket connection. It either dials
// the configured room URL (subprocess and goroutine spawning) or runs over a
// connection the HTTP layer already accepted.
type WebSocketBot struct {
	lifecycle

	id   string
	cfg  Config
	deps Deps

	conn *websocket.Conn
	dial func(ctx context.Context) (*websocket.Conn, error)
}

var _ Bot = (*WebSocketBot)(nil)

// NewWebSocket creates a bot that dials cfg.RoomURL when run, authenticating
// with cfg.Token.
func NewWebSocket(cfg Config, deps Deps) *WebSocketBot {
	b := newWebSocketBot(cfg, deps)
	b.dial = func(ctx context.Context) (*websocket.Conn, error) {
		hdr := http.Header{}
		if cfg.Token != "" {
			hdr.Set("Authorization", "Bearer "+cfg.Token)
		}
		conn, _, err := websocket.Dial(ctx, cfg.RoomURL, &websocket.DialOptions{HTTPHeader: hdr})
		if err != nil {
			return nil, fmt.Errorf("bot: dial room %s: %w", cfg.RoomURL, err)
		}
		return conn, nil
	}
	return b
}

// NewWebSocketConn creates a bot over an already-accepted connection.
func NewWebSocketConn(conn *websocket.Conn, cfg Config, deps Deps) *WebSocketBot {
	b := newWebSocketBot(cfg, deps)
	b.conn = conn
	return b
}

func newWebSocketBot(cfg Config, deps Deps) *WebSocketBot {
	id := cfg.BotID
	if id == "" {
		id = uuid.NewString()
	}
	return &WebSocketBot{id: id, cfg: cfg, deps: deps}
}

// ID implements [Bot].
func (b *WebSocketBot) ID() string { return b.id }

// Run implements [Bot]. It connects, assembles the pipeline, and drives the
// task until the client disconnects or ctx is cancelled.
func (b *WebSocketBot) Run(ctx context.Context) error {
	if !b.casState(StateInstantiated, StateAwaitingClient) {
		return fmt.Errorf("bot %s: already run", b.id)
	}
	defer b.setState(StateTerminated)

	conn := b.conn
	if conn == nil {
		var err error
		if conn, err = b.dial(ctx); err != nil {
			return err
		}
	}

	t := wstransport.New(conn, b.id, wstransport.Params{
		AudioOutEnabled: b.cfg.AudioOutEnabled,
		AddWAVHeader:    b.cfg.AddWAVHeader,
	})
	defer t.Close()

	task := assemble(b.cfg, b.deps, t.Input(), t.Output())

	t.OnClientConnected(func(clientID string) {
		b.setState(StateRunning)
		slog.Info("bot: client connected", "bot_id", b.id, "client_id", clientID)
		if err := greet(task, b.cfg.LLM.Language); err != nil {
			slog.Warn("bot: queue greeting", "bot_id", b.id, "err", err)
		}
	})
	t.OnClientDisconnected(func(clientID string) {
		slog.Info("bot: client disconnected", "bot_id", b.id, "client_id", clientID)
		task.Cancel()
	})

	return pipeline.NewRunner("bot-" + b.id).Run(ctx, task)
}
