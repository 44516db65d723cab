package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// serverEvent is a JSON text message sent to the client.
type serverEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// transcriptPayload is the data body of transcription events.
type transcriptPayload struct {
	Text      string `json:"text"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Language  string `json:"language,omitempty"`
	Final     bool   `json:"final"`
}

// Output is the pipeline stage that writes bot output to the client:
// synthesised audio as binary messages, events as JSON. An interruption
// clears its queue, so stale audio for an abandoned response is never
// written.
type Output struct {
	pipeline.BaseProcessor

	t    *Transport
	conv audio.FormatConverter
}

var _ pipeline.Processor = (*Output)(nil)

func newOutput(t *Transport) *Output {
	p := &Output{t: t}
	p.conv.Target = audio.Format{
		SampleRate: t.params.AudioOutSampleRate,
		Channels:   t.params.AudioOutChannels,
	}
	p.InitName("ws_output")
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *Output) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.TTSAudioRawFrame:
		p.writeAudio(tf)

	case frame.TTSStartedFrame:
		p.writeEvent(serverEvent{Type: "bot_started_speaking"})

	case frame.TTSStoppedFrame:
		p.writeEvent(serverEvent{Type: "bot_stopped_speaking"})

	case frame.TranscriptionFrame:
		p.writeEvent(serverEvent{Type: "transcription", Data: transcriptPayload{
			Text: tf.Text, UserID: tf.UserID, Timestamp: tf.Timestamp,
			Language: tf.Language, Final: true,
		}})

	case frame.InterimTranscriptionFrame:
		p.writeEvent(serverEvent{Type: "transcription", Data: transcriptPayload{
			Text: tf.Text, UserID: tf.UserID, Timestamp: tf.Timestamp,
			Language: tf.Language, Final: false,
		}})

	case frame.ErrorFrame:
		p.writeEvent(serverEvent{Type: "error", Data: map[string]string{"message": tf.Err.Error()}})

	case frame.TransportMessageFrame:
		p.writeEvent(serverEvent{Type: "message", Data: tf.Message})
	}

	return p.PushFrame(f, dir)
}

// writeAudio converts one synthesis chunk to the client's output format and
// writes it as a binary message.
func (p *Output) writeAudio(tf frame.TTSAudioRawFrame) {
	if !p.t.params.AudioOutEnabled {
		return
	}

	pcm := p.conv.Convert(tf.Audio, audio.Format{SampleRate: tf.SampleRate, Channels: tf.Channels})
	if len(pcm) == 0 {
		return
	}
	if p.t.params.AddWAVHeader {
		pcm = audio.WAV(pcm, p.t.params.AudioOutSampleRate, p.t.params.AudioOutChannels, 16)
	}

	if err := p.t.conn.Write(p.Context(), websocket.MessageBinary, pcm); err != nil {
		slog.Debug("ws transport: audio write failed", "client_id", p.t.clientID, "err", err)
		p.t.fireDisconnected()
	}
}

// writeEvent marshals and writes one JSON event.
func (p *Output) writeEvent(ev serverEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("ws transport: marshal event", "type", ev.Type, "err", err)
		return
	}
	if err := p.t.conn.Write(p.Context(), websocket.MessageText, data); err != nil {
		slog.Debug("ws transport: event write failed", "client_id", p.t.clientID, "err", err)
		p.t.fireDisconnected()
	}
}
