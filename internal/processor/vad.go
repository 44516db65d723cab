// Package processor contains the pipeline stages between the input and
// output transports: voice activity detection, speech recognition, response
// generation, and speech synthesis. Each stage bridges a provider interface
// into the frame runtime and keeps model inference off the queue goroutine.
package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

// VAD watches the user audio stream and brackets speech with speaking-state
// frames. On speech start it also fires an interruption, both upstream and
// downstream, so a user talking over the bot cuts playback within one
// detection window.
//
// Incoming audio is re-chunked to the engine's window size; the audio frames
// themselves are forwarded unchanged for the recognition stage.
type VAD struct {
	pipeline.BaseProcessor

	engine vad.Engine
	cfg    vad.Config

	mu                 sync.Mutex
	session            vad.SessionHandle
	buf                []byte
	frameBytes         int
	allowInterruptions bool
}

var _ pipeline.Processor = (*VAD)(nil)

// NewVAD creates the detection stage. Zero cfg fields are filled from the
// StartFrame and engine defaults.
func NewVAD(engine vad.Engine, cfg vad.Config) *VAD {
	p := &VAD{engine: engine, cfg: cfg}
	p.InitName("vad")
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *VAD) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.StartFrame:
		if err := p.open(tf); err != nil {
			return err
		}

	case frame.UserAudioRawFrame:
		p.analyze(tf.Audio)
	}

	return p.PushFrame(f, dir)
}

// open creates the per-task detection session.
func (p *VAD) open(sf frame.StartFrame) error {
	cfg := p.cfg
	if cfg.SampleRate == 0 {
		cfg.SampleRate = sf.AudioInSampleRate
	}
	if cfg.FrameSizeMs == 0 {
		cfg.FrameSizeMs = 32
	}
	if cfg.SpeechThreshold == 0 {
		cfg.SpeechThreshold = 0.5
	}
	if cfg.SilenceThreshold == 0 {
		cfg.SilenceThreshold = 0.35
	}

	session, err := p.engine.NewSession(cfg)
	if err != nil {
		return fmt.Errorf("vad: new session: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.frameBytes = cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	p.allowInterruptions = sf.AllowInterruptions
	p.mu.Unlock()
	return nil
}

// analyze feeds buffered audio through the detector one window at a time.
func (p *VAD) analyze(audio []byte) {
	p.mu.Lock()
	session := p.session
	frameBytes := p.frameBytes
	if session == nil || frameBytes <= 0 {
		p.mu.Unlock()
		return
	}
	p.buf = append(p.buf, audio...)

	var events []vad.Event
	for len(p.buf) >= frameBytes {
		window := p.buf[:frameBytes]
		ev, err := session.ProcessFrame(window)
		p.buf = p.buf[frameBytes:]
		if err != nil {
			continue
		}
		if ev.Type == vad.SpeechStart || ev.Type == vad.SpeechEnd {
			events = append(events, ev)
		}
	}
	allowInterruptions := p.allowInterruptions
	p.mu.Unlock()

	for _, ev := range events {
		switch ev.Type {
		case vad.SpeechStart:
			if allowInterruptions {
				_ = p.PushFrame(frame.StartInterruptionFrame{}, pipeline.Upstream)
				_ = p.PushFrame(frame.StartInterruptionFrame{}, pipeline.Downstream)
			}
			_ = p.PushFrame(frame.UserStartedSpeakingFrame{}, pipeline.Downstream)
		case vad.SpeechEnd:
			if allowInterruptions {
				_ = p.PushFrame(frame.StopInterruptionFrame{}, pipeline.Downstream)
			}
			_ = p.PushFrame(frame.UserStoppedSpeakingFrame{}, pipeline.Downstream)
		}
	}
}

// Cleanup implements pipeline.Processor.
func (p *VAD) Cleanup() error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.buf = nil
	p.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}
