package webrtc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
	return rec
}

func TestSignaling_Join(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	type joined struct{ room, user string }
	var joins []joined
	s := NewSignalingServer(Params{}, func(roomID string, tr *Transport, username string) {
		mu.Lock()
		joins = append(joins, joined{roomID, username})
		mu.Unlock()
	})
	h := s.Handler()

	rec := doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{
		UserID: "u1", Username: "alice", SDPOffer: "v=0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp joinResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SDPAnswer == "" {
		t.Error("empty SDP answer")
	}

	room, ok := s.Room("demo")
	if !ok || room.NumPeers() != 1 {
		t.Fatalf("room state: ok=%v", ok)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(joins) != 1 || joins[0].room != "demo" || joins[0].user != "alice" {
		t.Errorf("join callbacks = %v", joins)
	}
}

func TestSignaling_JoinValidation(t *testing.T) {
	t.Parallel()
	s := NewSignalingServer(Params{}, nil)
	h := s.Handler()

	if rec := doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{Username: "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id: status = %d", rec.Code)
	}

	doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{UserID: "u1"})
	if rec := doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{UserID: "u1"}); rec.Code != http.StatusConflict {
		t.Errorf("duplicate join: status = %d", rec.Code)
	}
}

func TestSignaling_ICE(t *testing.T) {
	t.Parallel()
	s := NewSignalingServer(Params{}, nil)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{UserID: "u1"})

	if rec := doJSON(t, h, http.MethodPost, "/rooms/demo/ice", iceRequest{UserID: "u1", Candidate: "candidate:1"}); rec.Code != http.StatusOK {
		t.Errorf("ice: status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/rooms/nope/ice", iceRequest{UserID: "u1"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown room: status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/rooms/demo/ice", iceRequest{UserID: "ghost"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown peer: status = %d", rec.Code)
	}
}

func TestSignaling_Leave(t *testing.T) {
	t.Parallel()
	s := NewSignalingServer(Params{}, nil)
	h := s.Handler()

	doJSON(t, h, http.MethodPost, "/rooms/demo/join", joinRequest{UserID: "u1"})

	if rec := doJSON(t, h, http.MethodDelete, "/rooms/demo/leave", leaveRequest{UserID: "u1"}); rec.Code != http.StatusOK {
		t.Errorf("leave: status = %d", rec.Code)
	}
	room, _ := s.Room("demo")
	if room.NumPeers() != 0 {
		t.Errorf("peers = %d after leave", room.NumPeers())
	}
	if rec := doJSON(t, h, http.MethodDelete, "/rooms/nope/leave", leaveRequest{UserID: "u1"}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown room: status = %d", rec.Code)
	}
}
