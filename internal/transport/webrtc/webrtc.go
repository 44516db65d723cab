// Package webrtc implements the client transport over a WebRTC peer
// connection.
//
// Peers exchange Opus at 48 kHz stereo in 20 ms packets, the standard WebRTC
// audio profile. The transport decodes incoming packets to PCM for the
// pipeline and encodes synthesised audio back to Opus on the way out. Peer
// connection handling sits behind the [PeerTransport] interface so the
// signaling and framing logic stays independent of any specific WebRTC
// stack; the in-memory transport used by default carries packets over
// channels, which is also what the tests drive.
//
// Like the WebSocket transport, this package exposes an input stage for the
// head of the pipeline and an output stage near the tail, bound to one peer.
package webrtc

import (
	"sync"
)

// Params configures a WebRTC transport pair.
type Params struct {
	// AudioOutEnabled controls whether synthesised audio is sent to the peer.
	AudioOutEnabled bool

	// AudioInSampleRate and AudioInChannels describe the PCM handed to the
	// pipeline after decoding. Defaults: 16000 Hz mono.
	AudioInSampleRate int
	AudioInChannels   int
}

func (p *Params) applyDefaults() {
	if p.AudioInSampleRate == 0 {
		p.AudioInSampleRate = 16000
	}
	if p.AudioInChannels == 0 {
		p.AudioInChannels = 1
	}
}

// Transport owns one peer connection and exposes the input and output
// pipeline stages bound to it.
type Transport struct {
	peer     PeerTransport
	clientID string
	params   Params

	in  *Input
	out *Output

	mu             sync.Mutex
	onConnected    []func(clientID string)
	onDisconnected []func(clientID string)
	disconnected   bool
}

// New wraps an established peer connection. clientID identifies the peer in
// frames and logs.
func New(peer PeerTransport, clientID string, params Params) (*Transport, error) {
	params.applyDefaults()
	t := &Transport{peer: peer, clientID: clientID, params: params}

	in, err := newInput(t)
	if err != nil {
		return nil, err
	}
	out, err := newOutput(t)
	if err != nil {
		return nil, err
	}
	t.in = in
	t.out = out
	return t, nil
}

// ClientID returns the peer identifier.
func (t *Transport) ClientID() string { return t.clientID }

// Input returns the pipeline stage that reads peer audio.
func (t *Transport) Input() *Input { return t.in }

// Output returns the pipeline stage that sends bot audio.
func (t *Transport) Output() *Output { return t.out }

// OnClientConnected registers a callback fired when the input stage starts.
func (t *Transport) OnClientConnected(fn func(clientID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnected = append(t.onConnected, fn)
}

// OnClientDisconnected registers a callback fired once when the peer
// connection drops or is closed.
func (t *Transport) OnClientDisconnected(fn func(clientID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDisconnected = append(t.onDisconnected, fn)
}

func (t *Transport) fireConnected() {
	t.mu.Lock()
	fns := append([]func(string){}, t.onConnected...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(t.clientID)
	}
}

func (t *Transport) fireDisconnected() {
	t.mu.Lock()
	if t.disconnected {
		t.mu.Unlock()
		return
	}
	t.disconnected = true
	fns := append([]func(string){}, t.onDisconnected...)
	t.mu.Unlock()
	for _, fn := range fns {
		fn(t.clientID)
	}
}

// Close tears down the peer connection.
func (t *Transport) Close() error {
	err := t.peer.Close()
	t.fireDisconnected()
	return err
}
