// Package mock provides a scripted llm.Provider for tests. Each call pops the
// next scripted response; requests are recorded for assertions.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxpipe/voxpipe/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider is a scripted llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Script holds one chunk sequence per expected call. Calls beyond the
	// script reuse the last entry; an empty script yields a single "stop".
	Script [][]llm.Chunk

	// Err, when non-nil, is returned by StreamCompletion and Complete.
	Err error

	// ChunkDelay, when non-zero, spaces out emitted chunks to simulate
	// generation latency.
	ChunkDelay time.Duration

	// Caps is returned by Capabilities.
	Caps llm.ModelCapabilities

	calls []llm.CompletionRequest
}

// Calls returns every recorded request.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.CompletionRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// next records the request and returns the chunk sequence for this call.
func (p *Provider) next(req llm.CompletionRequest) []llm.Chunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.calls)
	p.calls = append(p.calls, req)
	if len(p.Script) == 0 {
		return []llm.Chunk{{FinishReason: "stop"}}
	}
	if idx >= len(p.Script) {
		idx = len(p.Script) - 1
	}
	return p.Script[idx]
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	if p.Err != nil {
		p.mu.Lock()
		p.calls = append(p.calls, req)
		p.mu.Unlock()
		return nil, p.Err
	}

	chunks := p.next(req)
	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if p.ChunkDelay > 0 {
				select {
				case <-time.After(p.ChunkDelay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Complete implements llm.Provider by joining the scripted chunk texts.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.Err != nil {
		p.mu.Lock()
		p.calls = append(p.calls, req)
		p.mu.Unlock()
		return nil, p.Err
	}

	var b strings.Builder
	for _, c := range p.next(req) {
		b.WriteString(c.Text)
	}
	return &llm.CompletionResponse{Content: b.String()}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.Caps }
