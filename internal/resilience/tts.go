package resilience

import (
	"context"

	"github.com/voxpipe/voxpipe/pkg/provider/tts"
)

// TTSFailover implements [tts.Provider] across a chain of backends. Failover
// covers stream setup only.
//
// All chained backends must emit the same PCM format; [TTSFailover.StreamInfo]
// reports the primary's format unconditionally.
type TTSFailover struct {
	chain *Chain[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover creates a failover provider with primary as the preferred
// backend.
func NewTTSFailover(primaryName string, primary tts.Provider, cfg ChainConfig) *TTSFailover {
	return &TTSFailover{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers another backend, tried after all earlier ones.
func (f *TTSFailover) Add(name string, p tts.Provider) {
	f.chain.Add(name, p)
}

// SynthesizeStream starts synthesis on the first healthy backend.
func (f *TTSFailover) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return First(f.chain, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// StreamInfo reports the primary backend's PCM format.
func (f *TTSFailover) StreamInfo() tts.StreamInfo {
	return f.chain.primary().StreamInfo()
}

// ListVoices queries the first healthy backend's voice catalogue.
func (f *TTSFailover) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return First(f.chain, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
