package webrtc

import (
	"fmt"
	"sync"
)

// RoomOption configures a [Room].
type RoomOption func(*Room)

// WithPeerFactory overrides how peer transports are created. The default
// factory returns in-memory peers.
func WithPeerFactory(fn func(userID string) PeerTransport) RoomOption {
	return func(r *Room) { r.newPeer = fn }
}

// Room manages the peers of one WebRTC room. Each joining peer gets its own
// [Transport]; the join callback hands it to the caller so a bot pipeline
// can be assembled around it.
//
// Room is safe for concurrent use.
type Room struct {
	id     string
	params Params

	mu     sync.Mutex
	peers  map[string]*Transport
	onJoin func(t *Transport, username string)
	closed bool

	newPeer func(userID string) PeerTransport
}

// NewRoom creates a room with the given transport params for its peers.
func NewRoom(id string, params Params, opts ...RoomOption) *Room {
	r := &Room{
		id:     id,
		params: params,
		peers:  make(map[string]*Transport),
		newPeer: func(_ string) PeerTransport {
			return NewMemoryPeer()
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// OnPeerJoined registers the callback invoked for every peer added after
// registration. Subsequent calls replace the previous registration.
func (r *Room) OnPeerJoined(fn func(t *Transport, username string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onJoin = fn
}

// AddPeer creates a peer transport for userID and returns the bound
// Transport. Fails if the room is closed or the peer already joined.
func (r *Room) AddPeer(userID, username string) (*Transport, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("webrtc: room %q is closed", r.id)
	}
	if _, exists := r.peers[userID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("webrtc: peer %q already joined room %q", userID, r.id)
	}

	t, err := New(r.newPeer(userID), userID, r.params)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.peers[userID] = t
	onJoin := r.onJoin
	r.mu.Unlock()

	t.OnClientDisconnected(func(clientID string) {
		r.mu.Lock()
		delete(r.peers, clientID)
		r.mu.Unlock()
	})

	if onJoin != nil {
		onJoin(t, username)
	}
	return t, nil
}

// Peer returns the transport for userID, if joined.
func (r *Room) Peer(userID string) (*Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.peers[userID]
	return t, ok
}

// RemovePeer closes and removes the peer identified by userID.
func (r *Room) RemovePeer(userID string) error {
	r.mu.Lock()
	t, exists := r.peers[userID]
	delete(r.peers, userID)
	r.mu.Unlock()
	if !exists {
		return fmt.Errorf("webrtc: peer %q not found in room %q", userID, r.id)
	}
	return t.Close()
}

// NumPeers returns the number of joined peers.
func (r *Room) NumPeers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// Close tears down all peers. Safe to call more than once.
func (r *Room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	peers := make([]*Transport, 0, len(r.peers))
	for _, t := range r.peers {
		peers = append(peers, t)
	}
	r.peers = make(map[string]*Transport)
	r.mu.Unlock()

	for _, t := range peers {
		_ = t.Close()
	}
	return nil
}
