package webrtc

import "context"

// PeerTransport abstracts one WebRTC peer connection carrying Opus packets.
// Decoupling the transport stages from the peer-connection stack lets the
// signaling and framing logic run against an in-memory implementation; a
// pion-backed PeerTransport can slot in without touching the pipeline side.
type PeerTransport interface {
	// CreateOffer creates an SDP offer for a new peer.
	CreateOffer(ctx context.Context) (sdpOffer string, err error)

	// AcceptAnswer processes the remote peer's SDP answer.
	AcceptAnswer(ctx context.Context, sdpAnswer string) error

	// AddICECandidate adds a remote ICE candidate.
	AddICECandidate(candidate string) error

	// AudioInput returns the channel delivering Opus packets received from
	// this peer. The channel closes when the connection drops.
	AudioInput() <-chan []byte

	// SendAudio sends one Opus packet to this peer.
	SendAudio(packet []byte) error

	// Close tears down the peer connection and releases resources.
	Close() error
}

// memoryPeer is a [PeerTransport] carrying packets over channels. It is the
// default transport wired by the signaling server and the one the tests use:
// tests write to the inbound channel to simulate peer audio and read the
// outbound channel to verify sent packets.
type memoryPeer struct {
	audioIn  chan []byte
	audioOut chan []byte
	closed   chan struct{}
}

// NewMemoryPeer creates an in-memory peer transport.
func NewMemoryPeer() *memoryPeer {
	return &memoryPeer{
		audioIn:  make(chan []byte, 16),
		audioOut: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

var _ PeerTransport = (*memoryPeer)(nil)

func (m *memoryPeer) CreateOffer(_ context.Context) (string, error) {
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=voxpipe audio\r\n", nil
}

func (m *memoryPeer) AcceptAnswer(_ context.Context, _ string) error { return nil }

func (m *memoryPeer) AddICECandidate(_ string) error { return nil }

func (m *memoryPeer) AudioInput() <-chan []byte { return m.audioIn }

// Inject delivers an Opus packet as if it arrived from the remote peer.
func (m *memoryPeer) Inject(packet []byte) {
	select {
	case m.audioIn <- packet:
	case <-m.closed:
	}
}

// Sent returns the channel of packets sent to the remote peer.
func (m *memoryPeer) Sent() <-chan []byte { return m.audioOut }

func (m *memoryPeer) SendAudio(packet []byte) error {
	select {
	case m.audioOut <- packet:
	case <-m.closed:
	}
	return nil
}

func (m *memoryPeer) Close() error {
	select {
	case <-m.closed:
		// already closed
	default:
		close(m.closed)
		close(m.audioIn)
	}
	return nil
}
