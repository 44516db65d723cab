package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// clientMessage is a JSON text message from the client.
type clientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Input is the pipeline stage at the head of the chain. On StartFrame it
// spawns a reader goroutine that turns binary messages into user audio
// frames; the reader exits when the connection drops, firing the
// disconnect callbacks.
type Input struct {
	pipeline.BaseProcessor

	t *Transport

	mu      sync.Mutex
	cancel  context.CancelFunc
	readers sync.WaitGroup
}

var _ pipeline.Processor = (*Input)(nil)

func newInput(t *Transport) *Input {
	p := &Input{t: t}
	p.InitName("ws_input")
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *Input) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	if _, ok := f.(frame.StartFrame); ok && dir == pipeline.Downstream {
		p.startReader()
		p.t.fireConnected()
	}
	if dir == pipeline.Upstream {
		// Upstream frames terminate at the input edge; interruptions have
		// already cleared the queues on their way here.
		return nil
	}
	return p.PushFrame(f, dir)
}

// startReader spawns the connection read loop.
func (p *Input) startReader() {
	ctx, cancel := context.WithCancel(p.Context())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.readers.Add(1)
	go func() {
		defer p.readers.Done()
		defer p.t.fireDisconnected()
		p.readLoop(ctx)
	}()
}

// readLoop pumps client messages into the pipeline until the connection
// closes or the task ends.
func (p *Input) readLoop(ctx context.Context) {
	for {
		typ, data, err := p.t.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("ws transport: read ended", "client_id", p.t.clientID, "err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			_ = p.PushFrame(frame.UserAudioRawFrame{
				AudioRawFrame: frame.AudioRawFrame{
					Audio:       data,
					SampleRate:  p.t.params.AudioInSampleRate,
					Channels:    p.t.params.AudioInChannels,
					SampleWidth: 2,
				},
				UserID: p.t.clientID,
			}, pipeline.Downstream)

		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				slog.Warn("ws transport: bad client message", "client_id", p.t.clientID, "err", err)
				continue
			}
			p.handleMessage(msg)
		}
	}
}

// handleMessage dispatches a JSON control message from the client.
func (p *Input) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "speak":
		// Client-initiated verbatim speech.
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err == nil && payload.Text != "" {
			_ = p.PushFrame(frame.TTSSpeakFrame{Text: payload.Text}, pipeline.Downstream)
		}
	case "ping":
		// Liveness only; nothing enters the pipeline.
	default:
		slog.Debug("ws transport: unhandled client message", "client_id", p.t.clientID, "type", msg.Type)
	}
}

// Cleanup stops the reader.
func (p *Input) Cleanup() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.readers.Wait()
	return nil
}
