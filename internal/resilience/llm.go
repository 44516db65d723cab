package resilience

import (
	"context"

	"github.com/voxpipe/voxpipe/pkg/provider/llm"
)

// LLMFailover implements [llm.Provider] across a chain of backends. Only the
// initial request is covered; once a stream is established, mid-stream
// errors stay with the caller.
type LLMFailover struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates a failover provider with primary as the preferred
// backend.
func NewLLMFailover(primaryName string, primary llm.Provider, cfg ChainConfig) *LLMFailover {
	return &LLMFailover{chain: NewChain(primaryName, primary, cfg)}
}

// Add registers another backend, tried after all earlier ones.
func (f *LLMFailover) Add(name string, p llm.Provider) {
	f.chain.Add(name, p)
}

// StreamCompletion opens a token stream on the first healthy backend.
func (f *LLMFailover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return First(f.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// Complete runs a blocking completion on the first healthy backend.
func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return First(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities reports the primary's capabilities. Static metadata does not
// fail over; mixing backends with different capabilities is the operator's
// problem to avoid.
func (f *LLMFailover) Capabilities() llm.ModelCapabilities {
	return f.chain.primary().Capabilities()
}
