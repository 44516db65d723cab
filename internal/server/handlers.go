package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/voxpipe/voxpipe/internal/bot"
	"github.com/voxpipe/voxpipe/internal/room"
	"github.com/voxpipe/voxpipe/internal/taskmgr"
	"github.com/voxpipe/voxpipe/pkg/frame"
)

// handleCreateRoom creates a room on the room service and redirects the
// caller to it. The room expires after the client's configured lifetime.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	rm, err := s.rooms.CreateRoom(r.Context(), name)
	if err != nil {
		slog.Error("server: create room failed", "room", name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, rm.URL, http.StatusFound)
}

// botJoinRequest is the POST /bot_join body. All fields are optional; the
// server fills defaults from its bot configuration.
type botJoinRequest struct {
	// IsAgent marks the joining party as an agent rather than a human client.
	IsAgent bool `json:"is_agent,omitempty"`

	// ChatBotName selects the registered bot by name. It takes precedence
	// over bot_config.name.
	ChatBotName string `json:"chat_bot_name,omitempty"`

	// RoomName joins an existing room instead of creating a fresh one.
	RoomName string `json:"room_name,omitempty"`

	// BotConfig customises the spawned bot (name, llm messages, voice).
	BotConfig bot.Config `json:"bot_config"`
}

// botJoinResponse is the POST /bot_join response body.
type botJoinResponse struct {
	RoomName  string     `json:"room_name"`
	RoomURL   string     `json:"room_url"`
	Token     string     `json:"token"`
	BotConfig bot.Config `json:"bot_config"`
	BotID     string     `json:"bot_id"`
	Pid       int        `json:"pid"`
	Status    string     `json:"status"`
}

// handleBotJoin provisions a room and token, spawns a bot into the room, and
// returns everything the client needs to join. Unknown bot names and rooms
// at capacity both fail the request.
func (s *Server) handleBotJoin(w http.ResponseWriter, r *http.Request) {
	var req botJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	rm, err := s.provisionRoom(r, req.RoomName)
	if err != nil {
		slog.Error("server: provision room failed", "room", req.RoomName, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	token, err := s.rooms.CreateToken(ctx, rm.Name, false)
	if err != nil {
		slog.Error("server: create token failed", "room", rm.Name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if req.ChatBotName != "" {
		req.BotConfig.Name = req.ChatBotName
	}
	req.BotConfig.IsAgent = req.BotConfig.IsAgent || req.IsAgent

	cfg := s.applyBotDefaults(req.BotConfig)
	cfg.BotID = uuid.NewString()
	cfg.RoomURL = rm.URL
	cfg.Token = token

	unit, err := s.spawner(cfg)
	if err != nil {
		s.metrics.RecordBotSpawn(ctx, cfg.Name, "error")
		slog.Error("server: build bot failed", "bot", cfg.Name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	handle, err := s.mgr.Spawn(ctx, rm.Name, cfg.BotID, unit)
	if err != nil {
		status := "error"
		if errors.Is(err, taskmgr.ErrRoomFull) {
			status = "room_full"
		}
		s.metrics.RecordBotSpawn(ctx, cfg.Name, status)
		slog.Error("server: spawn bot failed", "bot", cfg.Name, "room", rm.Name, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.RecordBotSpawn(ctx, cfg.Name, "ok")
	slog.Info("server: bot spawned", "bot", cfg.Name, "bot_id", cfg.BotID,
		"room", rm.Name, "pid", handle)

	writeJSON(w, http.StatusOK, botJoinResponse{
		RoomName:  rm.Name,
		RoomURL:   rm.URL,
		Token:     token,
		BotConfig: cfg,
		BotID:     cfg.BotID,
		Pid:       handle,
		Status:    string(taskmgr.StatusRunning),
	})
}

// provisionRoom returns the room to join: the named existing room when the
// request carries one, otherwise a freshly created room.
func (s *Server) provisionRoom(r *http.Request, name string) (room.Room, error) {
	if name != "" {
		if rm, err := s.rooms.GetRoom(r.Context(), name); err == nil {
			return rm, nil
		}
		// Not found or lookup failed; fall through and create it.
	}
	return s.rooms.CreateRoom(r.Context(), name)
}

// statusRoomInfo is the room block of the status response. URL is empty when
// the room service lookup fails; the name is always known locally.
type statusRoomInfo struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// statusResponse is the GET /status/{pid} body.
type statusResponse struct {
	Pid      int            `json:"pid"`
	BotID    string         `json:"bot_id"`
	Status   taskmgr.Status `json:"status"`
	RoomInfo statusRoomInfo `json:"room_info"`
}

// handleStatus reports the liveness of a spawned bot plus the identifiers a
// client needs to correlate it: the bot ID and the room it was spawned into.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(r.PathValue("pid"))
	if err != nil {
		http.Error(w, "invalid pid", http.StatusBadRequest)
		return
	}
	info, ok := s.mgr.Info(pid)
	if !ok {
		http.Error(w, "unknown pid", http.StatusNotFound)
		return
	}

	resp := statusResponse{
		Pid:      pid,
		BotID:    info.BotID,
		Status:   info.Status,
		RoomInfo: statusRoomInfo{Name: info.Room},
	}
	if rm, err := s.rooms.GetRoom(r.Context(), info.Room); err == nil {
		resp.RoomInfo.URL = rm.URL
	} else {
		slog.Debug("server: room lookup failed", "room", info.Room, "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// numBotsResponse is the GET /room/num_bots/{room} body.
type numBotsResponse struct {
	Room    string `json:"room"`
	NumBots int    `json:"num_bots"`
}

// handleNumBots counts live bots in a room.
func (s *Server) handleNumBots(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	writeJSON(w, http.StatusOK, numBotsResponse{Room: name, NumBots: s.mgr.NumBots(name)})
}

// botsResponse is the GET /room/bots/{room} body. RoomURL is filled when the
// room service knows the room; a lookup failure degrades to the bare name.
type botsResponse struct {
	Room    string            `json:"room"`
	RoomURL string            `json:"room_url,omitempty"`
	Bots    []taskmgr.BotInfo `json:"bots"`
}

// handleBots lists the bots spawned into a room, live and finished.
func (s *Server) handleBots(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("room")
	resp := botsResponse{Room: name, Bots: s.mgr.Bots(name)}

	if rm, err := s.rooms.GetRoom(r.Context(), name); err == nil {
		resp.RoomURL = rm.URL
	} else {
		slog.Debug("server: room lookup failed", "room", name, "err", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyBotDefaults fills unset bot config fields from the server defaults.
func (s *Server) applyBotDefaults(cfg bot.Config) bot.Config {
	if cfg.Name == "" {
		cfg.Name = s.defaults.Default
	}
	if cfg.LLM.Language == "" {
		cfg.LLM.Language = s.defaults.Language
	}
	if cfg.TTS.Voice == "" {
		cfg.TTS.Voice = s.defaults.Voice
	}
	if len(cfg.LLM.Messages) == 0 && s.defaults.SystemPrompt != "" {
		cfg.LLM.Messages = []frame.Message{{Role: "system", Content: s.defaults.SystemPrompt}}
	}
	cfg.VADEnabled = cfg.VADEnabled || s.defaults.VADEnabled
	cfg.AllowInterruptions = cfg.AllowInterruptions || s.defaults.AllowInterruptions
	cfg.AddWAVHeader = cfg.AddWAVHeader || s.defaults.AddWAVHeader
	cfg.AudioOutEnabled = cfg.AudioOutEnabled || s.defaults.AudioOutEnabled
	return cfg
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", "err", err)
	}
}
