// Package server exposes the voxpipe HTTP surface: room creation, bot
// spawning, bot status and listing, plus the ambient health and metrics
// endpoints. Request handling stays thin; session lifecycle belongs to the
// task manager and the bot package.
package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxpipe/voxpipe/internal/bot"
	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/health"
	"github.com/voxpipe/voxpipe/internal/observe"
	"github.com/voxpipe/voxpipe/internal/room"
	"github.com/voxpipe/voxpipe/internal/taskmgr"
)

// Spawner turns a finished bot configuration into an execution unit. The
// goroutine strategy wraps a registry-built bot; the subprocess strategy
// re-invokes the server binary.
type Spawner func(cfg bot.Config) (taskmgr.Unit, error)

// Params wires a [Server].
type Params struct {
	Config      config.ServerConfig
	BotDefaults config.BotConfig

	Rooms   *room.Client
	Manager *taskmgr.Manager
	Spawner Spawner

	Metrics *observe.Metrics
	Health  *health.Handler
}

// Server is the HTTP API. Create it with [New] and mount [Server.Handler].
type Server struct {
	cfg      config.ServerConfig
	defaults config.BotConfig

	rooms   *room.Client
	mgr     *taskmgr.Manager
	spawner Spawner

	metrics *observe.Metrics
	health  *health.Handler
}

// New creates a server from its wired dependencies.
func New(p Params) *Server {
	h := p.Health
	if h == nil {
		h = health.New()
	}
	m := p.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Server{
		cfg:      p.Config,
		defaults: p.BotDefaults,
		rooms:    p.Rooms,
		mgr:      p.Manager,
		spawner:  p.Spawner,
		metrics:  m,
		health:   h,
	}
}

// Handler returns the full route table wrapped in the middleware chain:
// host whitelist, CORS, then request metrics and tracing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /create_room/{name}", s.handleCreateRoom)
	mux.HandleFunc("POST /bot_join", s.handleBotJoin)
	mux.HandleFunc("GET /status/{pid}", s.handleStatus)
	mux.HandleFunc("GET /room/num_bots/{room}", s.handleNumBots)
	mux.HandleFunc("GET /room/bots/{room}", s.handleBots)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	var h http.Handler = mux
	h = observe.Middleware(s.metrics)(h)
	h = corsMiddleware(h)
	h = hostWhitelistMiddleware(s.cfg.HostWhitelist, h)
	return h
}

// hostWhitelistMiddleware rejects requests whose Host header is not in the
// whitelist. An empty whitelist admits everything.
func hostWhitelistMiddleware(whitelist []string, next http.Handler) http.Handler {
	if len(whitelist) == 0 {
		return next
	}
	allowed := make(map[string]struct{}, len(whitelist))
	for _, h := range whitelist {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if _, ok := allowed[strings.ToLower(host)]; !ok {
			http.Error(w, "host not allowed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds permissive CORS headers and answers preflights. The
// API is meant to be called from browser clients on other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
