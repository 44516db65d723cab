package webrtc

import (
	"context"
	"log/slog"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// Output is the pipeline stage that sends bot audio to the peer. Synthesis
// chunks are resampled to the wire format, packetised into 20 ms frames and
// Opus-encoded. A partial frame left at the end of an utterance is padded
// with silence and flushed, so trailing audio is never lost. An interruption
// clears the stage queue and drops the partial frame.
type Output struct {
	pipeline.BaseProcessor

	t    *Transport
	enc  *opusEncoder
	conv audio.FormatConverter

	buf []byte
}

var _ pipeline.Processor = (*Output)(nil)

func newOutput(t *Transport) (*Output, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	p := &Output{t: t, enc: enc}
	p.conv.Target = audio.Format{SampleRate: wireSampleRate, Channels: wireChannels}
	p.InitName("webrtc_output")
	return p, nil
}

// ProcessFrame implements pipeline.Processor.
func (p *Output) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.TTSAudioRawFrame:
		p.sendAudio(tf)

	case frame.TTSStoppedFrame:
		p.flush()

	case frame.EndFrame:
		p.flush()

	case frame.StartInterruptionFrame, frame.CancelFrame:
		p.buf = nil
	}

	return p.PushFrame(f, dir)
}

// sendAudio converts one synthesis chunk to the wire format and sends every
// complete 20 ms frame.
func (p *Output) sendAudio(tf frame.TTSAudioRawFrame) {
	if !p.t.params.AudioOutEnabled {
		return
	}

	pcm := p.conv.Convert(tf.Audio, audio.Format{SampleRate: tf.SampleRate, Channels: tf.Channels})
	p.buf = append(p.buf, pcm...)

	for len(p.buf) >= wireFrameBytes {
		p.sendFrame(p.buf[:wireFrameBytes])
		p.buf = p.buf[wireFrameBytes:]
	}
}

// flush pads and sends any partial frame.
func (p *Output) flush() {
	if len(p.buf) == 0 {
		return
	}
	padded := make([]byte, wireFrameBytes)
	copy(padded, p.buf)
	p.buf = nil
	p.sendFrame(padded)
}

func (p *Output) sendFrame(pcm []byte) {
	packet, err := p.enc.encode(pcm)
	if err != nil {
		slog.Warn("webrtc transport: encode failed", "client_id", p.t.clientID, "err", err)
		return
	}
	if err := p.t.peer.SendAudio(packet); err != nil {
		slog.Debug("webrtc transport: audio send failed", "client_id", p.t.clientID, "err", err)
		p.t.fireDisconnected()
	}
}
