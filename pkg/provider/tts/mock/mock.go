// Package mock provides a scripted tts.Provider for tests. It echoes each
// text fragment as a deterministic PCM chunk so tests can correlate input
// text with output audio.
package mock

import (
	"context"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// Provider is a scripted tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by SynthesizeStream.
	Err error

	// BytesPerFragment is the size of the PCM chunk emitted per text
	// fragment. Defaults to 320 (10 ms of 16 kHz mono).
	BytesPerFragment int

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// Info is returned by StreamInfo; a zero value defaults to 16 kHz mono.
	Info tts.StreamInfo

	synthesized []string
	voicesUsed  []tts.VoiceProfile
}

// Synthesized returns every text fragment consumed so far.
func (p *Provider) Synthesized() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.synthesized))
	copy(out, p.synthesized)
	return out
}

// VoicesUsed returns the voice passed to each SynthesizeStream call.
func (p *Provider) VoicesUsed() []tts.VoiceProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.VoiceProfile, len(p.voicesUsed))
	copy(out, p.voicesUsed)
	return out
}

// SynthesizeStream implements tts.Provider. Each fragment yields one PCM
// chunk filled with the fragment's length (mod 256), so tests can tell the
// chunks apart.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	if p.Err != nil {
		defer p.mu.Unlock()
		return nil, p.Err
	}
	p.voicesUsed = append(p.voicesUsed, voice)
	size := p.BytesPerFragment
	p.mu.Unlock()
	if size <= 0 {
		size = 320
	}

	audioCh := make(chan []byte, 64)
	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				p.mu.Lock()
				p.synthesized = append(p.synthesized, fragment)
				p.mu.Unlock()

				chunk := make([]byte, size)
				for i := range chunk {
					chunk[i] = byte(len(fragment))
				}
				select {
				case audioCh <- chunk:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return audioCh, nil
}

// StreamInfo implements tts.Provider.
func (p *Provider) StreamInfo() tts.StreamInfo {
	if p.Info.SampleRate == 0 {
		return tts.StreamInfo{SampleRate: 16000, Channels: 1}
	}
	return p.Info
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tts.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}
