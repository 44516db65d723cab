package resilience

import (
	"context"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

// STTFailover implements [stt.Provider] across a chain of backends. Failover
// covers session setup only; an established session stays bound to the
// backend that opened it.
type STTFailover struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover creates a failover provider with primary as the preferred
// backend.
func NewSTTFailover(primaryName string, primary stt.Provider, cfg ChainConfig) *STTFailover {
	return &STTFailover{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers another backend, tried after all earlier ones.
func (f *STTFailover) Add(name string, p stt.Provider) {
	f.chain.Add(name, p)
}

// StartStream opens a transcription session on the first healthy backend.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return First(f.chain, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
