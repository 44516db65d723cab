package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// TTS synthesises streamed text into speech audio. Text accumulates until a
// sentence boundary, then the sentence is fed to an open synthesis stream;
// audio chunks come back asynchronously and are re-injected downstream as
// TTSAudioRawFrames bracketed by TTSStartedFrame and TTSStoppedFrame.
//
// One synthesis stream spans one model response, so the provider can keep
// prosody continuous across sentences. An interruption cancels the stream
// and discards buffered text.
type TTS struct {
	pipeline.BaseProcessor

	provider tts.Provider
	voice    tts.VoiceProfile

	mu      sync.Mutex
	stream  *synthStream
	pending string
	wg      sync.WaitGroup
}

var _ pipeline.Processor = (*TTS)(nil)

// synthStream is one open synthesis stream.
type synthStream struct {
	textCh chan string
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

// NewTTS creates the synthesis stage with a fixed voice.
func NewTTS(provider tts.Provider, voice tts.VoiceProfile) *TTS {
	p := &TTS{provider: provider, voice: voice}
	p.InitName("tts")
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *TTS) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.LLMFullResponseStartFrame:
		if err := p.open(); err != nil {
			return err
		}

	case frame.TextFrame:
		p.mu.Lock()
		p.pending += tf.Text
		sentences, rest := splitSentences(p.pending)
		p.pending = rest
		p.mu.Unlock()
		for _, s := range sentences {
			p.feed(s)
		}

	case frame.LLMFullResponseEndFrame:
		p.flush()
		p.closeStream(false)

	case frame.TTSSpeakFrame:
		if err := p.speak(tf.Text); err != nil {
			return err
		}

	case frame.EndFrame:
		// In-band end: finish synthesising everything queued before letting
		// the end frame travel further.
		p.flush()
		p.closeStream(true)

	case frame.StartInterruptionFrame, frame.CancelFrame:
		p.abort()
	}

	return p.PushFrame(f, dir)
}

// open starts a synthesis stream for the coming response.
func (p *TTS) open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *TTS) openLocked() error {
	if p.stream != nil && !p.stream.closed {
		return nil
	}

	ctx, cancel := context.WithCancel(p.Context())
	textCh := make(chan string, 16)
	audioCh, err := p.provider.SynthesizeStream(ctx, textCh, p.voice)
	if err != nil {
		cancel()
		return fmt.Errorf("tts: start synthesis: %w", err)
	}

	s := &synthStream{textCh: textCh, cancel: cancel, done: make(chan struct{})}
	p.stream = s

	info := p.provider.StreamInfo()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(s.done)
		started := false
		for pcm := range audioCh {
			if !started {
				started = true
				_ = p.PushFrame(frame.TTSStartedFrame{}, pipeline.Downstream)
			}
			_ = p.PushFrame(frame.TTSAudioRawFrame{AudioRawFrame: frame.AudioRawFrame{
				Audio:       pcm,
				SampleRate:  info.SampleRate,
				Channels:    info.Channels,
				SampleWidth: 2,
			}}, pipeline.Downstream)
		}
		if started {
			_ = p.PushFrame(frame.TTSStoppedFrame{}, pipeline.Downstream)
		}
	}()
	return nil
}

// feed hands one sentence to the open stream, opening one if needed.
func (p *TTS) feed(sentence string) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return
	}

	p.mu.Lock()
	if p.stream == nil || p.stream.closed {
		if err := p.openLocked(); err != nil {
			p.mu.Unlock()
			_ = p.PushFrame(frame.ErrorFrame{Err: err}, pipeline.Downstream)
			return
		}
	}
	s := p.stream
	p.mu.Unlock()

	select {
	case s.textCh <- sentence:
	case <-s.done:
		// Stream ended underneath us (cancelled); the text is obsolete.
	}
}

// flush feeds any unfinished sentence fragment.
func (p *TTS) flush() {
	p.mu.Lock()
	rest := strings.TrimSpace(p.pending)
	p.pending = ""
	p.mu.Unlock()
	if rest != "" {
		p.feed(rest)
	}
}

// speak synthesises standalone text outside a model response.
func (p *TTS) speak(text string) error {
	p.mu.Lock()
	standalone := p.stream == nil || p.stream.closed
	p.mu.Unlock()

	if standalone {
		if err := p.open(); err != nil {
			return err
		}
		p.feed(text)
		p.closeStream(false)
		return nil
	}
	p.feed(text)
	return nil
}

// closeStream ends the text input of the current stream. With wait set it
// blocks until all audio has been emitted.
func (p *TTS) closeStream(wait bool) {
	p.mu.Lock()
	s := p.stream
	if s == nil {
		p.mu.Unlock()
		return
	}
	if !s.closed {
		s.closed = true
		close(s.textCh)
	}
	p.mu.Unlock()

	if wait {
		<-s.done
	}
}

// abort cancels the current stream and drops buffered text.
func (p *TTS) abort() {
	p.mu.Lock()
	s := p.stream
	p.stream = nil
	p.pending = ""
	p.mu.Unlock()
	if s != nil {
		s.cancel()
	}
}

// Cleanup cancels any open stream and joins the audio pump.
func (p *TTS) Cleanup() error {
	p.abort()
	p.wg.Wait()
	return nil
}
