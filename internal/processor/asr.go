package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

// ASR feeds user audio into a speech-to-text session and re-injects the
// resulting transcripts as frames. Audio frames terminate here; everything
// else passes through.
type ASR struct {
	pipeline.BaseProcessor

	provider stt.Provider
	language string
	userID   string

	mu      sync.Mutex
	session stt.SessionHandle
	wg      sync.WaitGroup
}

var _ pipeline.Processor = (*ASR)(nil)

// ASROption configures the recognition stage.
type ASROption func(*ASR)

// WithASRLanguage sets the recognition language hint.
func WithASRLanguage(lang string) ASROption {
	return func(p *ASR) { p.language = lang }
}

// WithASRUserID stamps transcription frames with the speaking client's ID.
func WithASRUserID(id string) ASROption {
	return func(p *ASR) { p.userID = id }
}

// NewASR creates the recognition stage.
func NewASR(provider stt.Provider, opts ...ASROption) *ASR {
	p := &ASR{provider: provider}
	p.InitName("asr")
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *ASR) ProcessFrame(ctx context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.StartFrame:
		if err := p.open(ctx, tf); err != nil {
			return err
		}

	case frame.UserAudioRawFrame:
		p.mu.Lock()
		session := p.session
		p.mu.Unlock()
		if session != nil {
			if err := session.SendAudio(tf.Audio); err != nil {
				return fmt.Errorf("asr: send audio: %w", err)
			}
		}
		// Raw user audio is consumed here; nothing downstream needs it.
		return nil
	}

	return p.PushFrame(f, dir)
}

// open starts the transcription session and the transcript pump goroutines.
func (p *ASR) open(ctx context.Context, sf frame.StartFrame) error {
	session, err := p.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: sf.AudioInSampleRate,
		Channels:   sf.AudioInChannels,
		Language:   p.language,
	})
	if err != nil {
		return fmt.Errorf("asr: start stream: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	p.wg.Add(2)
	go p.pumpFinals(session)
	go p.pumpPartials(session)
	return nil
}

func (p *ASR) pumpFinals(session stt.SessionHandle) {
	defer p.wg.Done()
	for t := range session.Finals() {
		_ = p.PushFrame(frame.TranscriptionFrame{
			Text:      t.Text,
			UserID:    p.userID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Language:  t.Language,
		}, pipeline.Downstream)
	}
}

func (p *ASR) pumpPartials(session stt.SessionHandle) {
	defer p.wg.Done()
	for t := range session.Partials() {
		_ = p.PushFrame(frame.InterimTranscriptionFrame{
			Text:      t.Text,
			UserID:    p.userID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Language:  t.Language,
		}, pipeline.Downstream)
	}
}

// Cleanup closes the session, which closes the transcript channels and lets
// the pump goroutines drain out.
func (p *ASR) Cleanup() error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
	p.wg.Wait()
	return nil
}
