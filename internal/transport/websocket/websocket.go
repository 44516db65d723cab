// Package websocket implements the client transport over a WebSocket
// connection.
//
// Wire protocol: the client sends raw PCM audio as binary messages and
// control payloads as JSON text messages. The server sends synthesised audio
// as binary messages (optionally WAV-framed per chunk, for browser decoders
// that need a container) and events (transcriptions, speaking state, custom
// messages) as JSON text messages.
//
// The transport splits into an input stage at the head of the pipeline and
// an output stage near the tail, sharing one connection.
package websocket

import (
	"sync"

	"github.com/coder/websocket"
)

// Params configures a WebSocket transport pair.
type Params struct {
	// AudioOutEnabled controls whether synthesised audio is written to the
	// client at all. Text-only clients disable it.
	AudioOutEnabled bool

	// AddWAVHeader prepends a RIFF header to every outgoing audio chunk.
	AddWAVHeader bool

	// AudioInSampleRate and AudioInChannels describe the PCM the client
	// sends. Defaults: 16000 Hz mono.
	AudioInSampleRate int
	AudioInChannels   int

	// AudioOutSampleRate and AudioOutChannels describe the PCM written back.
	// Synthesis output is converted to this format. Defaults: 16000 Hz mono.
	AudioOutSampleRate int
	AudioOutChannels   int
}

func (p *Params) applyDefaults() {
	if p.AudioInSampleRate == 0 {
		p.AudioInSampleRate = 16000
	}
	if p.AudioInChannels == 0 {
		p.AudioInChannels = 1
	}
	if p.AudioOutSampleRate == 0 {
		p.AudioOutSampleRate = 16000
	}
	if p.AudioOutChannels == 0 {
		p.AudioOutChannels = 1
	}
}

// Transport owns one client connection and exposes the input and output
// pipeline stages bound to it.
type Transport struct {
	conn     *websocket.Conn
	clientID string
	params   Params

	in  *Input
	out *Output

	mu             sync.Mutex
	onConnected    []func(clientID string)
	onDisconnected []func(clientID string)
	disconnected   bool
}

// New wraps an accepted connection. clientID identifies the peer in frames
// and logs.
func New(conn *websocket.Conn, clientID string, params Params) *Transport {
	params.applyDefaults()
	t := &Transport{conn: conn, clientID: clientID, params: params}
	t.in = newInput(t)
	t.out = newOutput(t)
	return t
}

// ClientID returns the peer identifier.
func (t *Transport) ClientID() string { return t.clientID }

// Input returns the pipeline stage that reads client audio.
func (t *Transport) Input() *Input { return t.in }

// Output returns the pipeline stage that writes bot output.
func (t *Transport) Output() *Output { return t.out }

// OnClientConnected registers a callback fired when the input stage starts.
// Bots use it to queue their greeting.
func (t *Transport) OnClientConnected(fn func(clientID string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnected = append(t.onConnected, fn)
}

// OnClientDisconnected registers a callback fired once when the connection
// drops or is closed.
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

// Close closes the underlying connection.
func (t *Transport) Close() error {
	err := t.conn.Close(websocket.StatusNormalClosure, "session ended")
	t.fireDisconnected()
	return err
}
