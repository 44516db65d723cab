package webrtc

import (
	"encoding/json"
	"net/http"
	"sync"
)

// SignalingServer handles WebRTC signaling over HTTP endpoints. Rooms are
// created lazily on the first join; the join callback propagates to every
// room so the caller can attach a bot pipeline to each new peer.
type SignalingServer struct {
	params Params
	onJoin func(roomID string, t *Transport, username string)

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewSignalingServer creates a signaling server. The callback fires for
// every peer that joins, in any room.
func NewSignalingServer(params Params, onJoin func(roomID string, t *Transport, username string)) *SignalingServer {
	return &SignalingServer{
		params: params,
		onJoin: onJoin,
		rooms:  make(map[string]*Room),
	}
}

// Handler returns an http.Handler serving the signaling endpoints:
//
//	POST   /rooms/{roomID}/join    — peer sends SDP offer, gets SDP answer
//	POST   /rooms/{roomID}/ice     — peer sends ICE candidate
//	DELETE /rooms/{roomID}/leave   — peer disconnects
func (s *SignalingServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms/{roomID}/join", s.handleJoin)
	mux.HandleFunc("POST /rooms/{roomID}/ice", s.handleICE)
	mux.HandleFunc("DELETE /rooms/{roomID}/leave", s.handleLeave)
	return mux
}

// Room returns the room for roomID, if any peer has joined it.
func (s *SignalingServer) Room(roomID string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

type joinRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	SDPOffer string `json:"sdp_offer"`
}

type joinResponse struct {
	SDPAnswer string `json:"sdp_answer"`
}

// handleJoin handles POST /rooms/{roomID}/join.
func (s *SignalingServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	room := s.getOrCreateRoom(roomID)
	t, err := room.AddPeer(req.UserID, req.Username)
	if err != nil {
		http.Error(w, "failed to add peer: "+err.Error(), http.StatusConflict)
		return
	}

	answer, err := t.peer.CreateOffer(r.Context())
	if err != nil {
		http.Error(w, "failed to create answer: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(joinResponse{SDPAnswer: answer})
}

type iceRequest struct {
	UserID    string `json:"user_id"`
	Candidate string `json:"candidate"`
}

// handleICE handles POST /rooms/{roomID}/ice.
func (s *SignalingServer) handleICE(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	var req iceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	room, ok := s.Room(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	t, exists := room.Peer(req.UserID)
	if !exists {
		http.Error(w, "peer not found", http.StatusNotFound)
		return
	}

	if err := t.peer.AddICECandidate(req.Candidate); err != nil {
		http.Error(w, "failed to add ICE candidate: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type leaveRequest struct {
	UserID string `json:"user_id"`
}

// handleLeave handles DELETE /rooms/{roomID}/leave.
func (s *SignalingServer) handleLeave(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")

	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	room, ok := s.Room(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err := room.RemovePeer(req.UserID); err != nil {
		http.Error(w, "failed to remove peer: "+err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// getOrCreateRoom returns an existing room or creates one, wiring the join
// callback through.
func (s *SignalingServer) getOrCreateRoom(roomID string) *Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := NewRoom(roomID, s.params)
	if s.onJoin != nil {
		id := roomID
		room.OnPeerJoined(func(t *Transport, username string) {
			s.onJoin(id, t, username)
		})
	}
	s.rooms[roomID] = room
	return room
}
