package webrtc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// Input is the pipeline stage at the head of the chain. On StartFrame it
// spawns a reader goroutine that decodes incoming Opus packets and pushes the
// PCM downstream as user audio frames; the reader exits when the peer
// channel closes, firing the disconnect callbacks.
type Input struct {
	pipeline.BaseProcessor

	t    *Transport
	dec  *opusDecoder
	conv audio.FormatConverter

	mu      sync.Mutex
	cancel  context.CancelFunc
	readers sync.WaitGroup
}

var _ pipeline.Processor = (*Input)(nil)

func newInput(t *Transport) (*Input, error) {
	dec, err := newOpusDecoder()
	if err != nil {
		return nil, err
	}
	p := &Input{t: t, dec: dec}
	p.conv.Target = audio.Format{
		SampleRate: t.params.AudioInSampleRate,
		Channels:   t.params.AudioInChannels,
	}
	p.InitName("webrtc_input")
	return p, nil
}

// ProcessFrame implements pipeline.Processor.
func (p *Input) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	if _, ok := f.(frame.StartFrame); ok && dir == pipeline.Downstream {
		p.startReader()
		p.t.fireConnected()
	}
	if dir == pipeline.Upstream {
		// Upstream frames terminate at the input edge.
		return nil
	}
	return p.PushFrame(f, dir)
}

// startReader spawns the packet read loop.
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

// readLoop decodes peer packets into the pipeline until the peer channel
// closes or the task ends.
func (p *Input) readLoop(ctx context.Context) {
	in := p.t.peer.AudioInput()
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-in:
			if !ok {
				return
			}
			pcm, err := p.dec.decode(packet)
			if err != nil {
				slog.Warn("webrtc transport: dropping packet", "client_id", p.t.clientID, "err", err)
				continue
			}
			pcm = p.conv.Convert(pcm, audio.Format{SampleRate: wireSampleRate, Channels: wireChannels})
			if len(pcm) == 0 {
				continue
			}
			_ = p.PushFrame(frame.UserAudioRawFrame{
				AudioRawFrame: frame.AudioRawFrame{
					Audio:       pcm,
					SampleRate:  p.t.params.AudioInSampleRate,
					Channels:    p.t.params.AudioInChannels,
					SampleWidth: 2,
				},
				UserID: p.t.clientID,
			}, pipeline.Downstream)
		}
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
