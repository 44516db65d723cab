package processor

import (
	"context"
	"errors"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
)

// LLM runs streaming chat completions. Each LLMMessagesFrame starts a fresh
// generation on a worker goroutine; an interruption or a newer request
// cancels the one in flight, so at most one generation runs per session.
//
// Output is a LLMFullResponseStartFrame, a TextFrame per streamed chunk, and
// a LLMFullResponseEndFrame.
type LLM struct {
	pipeline.BaseProcessor

	provider     llm.Provider
	systemPrompt string
	temperature  float64
	maxTokens    int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ pipeline.Processor = (*LLM)(nil)

// LLMOption configures the generation stage.
type LLMOption func(*LLM)

// WithSystemPrompt sets the system prompt injected into every request.
func WithSystemPrompt(prompt string) LLMOption {
	return func(p *LLM) { p.systemPrompt = prompt }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(p *LLM) { p.temperature = t }
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) LLMOption {
	return func(p *LLM) { p.maxTokens = n }
}

// NewLLM creates the generation stage.
func NewLLM(provider llm.Provider, opts ...LLMOption) *LLM {
	p := &LLM{provider: provider}
	p.InitName("llm")
	for _, o := range opts {
		o(p)
	}
	return p
}

// ProcessFrame implements pipeline.Processor.
func (p *LLM) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	switch tf := f.(type) {
	case frame.LLMMessagesFrame:
		p.interrupt()
		p.generate(tf.Messages)
		return nil

	case frame.StartInterruptionFrame:
		p.interrupt()

	case frame.CancelFrame:
		p.interrupt()
	}

	return p.PushFrame(f, dir)
}

// interrupt cancels the in-flight generation, if any.
func (p *LLM) interrupt() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// generate starts a worker for one completion.
func (p *LLM) generate(messages []frame.Message) {
	genCtx, cancel := context.WithCancel(p.Context())
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()
		p.run(genCtx, messages)
	}()
}

// run streams one completion and re-injects the chunks as frames.
func (p *LLM) run(ctx context.Context, messages []frame.Message) {
	req := llm.CompletionRequest{
		Messages:     convertMessages(messages),
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
		SystemPrompt: p.systemPrompt,
	}

	ch, err := p.provider.StreamCompletion(ctx, req)
	if err != nil {
		_ = p.PushFrame(frame.ErrorFrame{Err: err}, pipeline.Downstream)
		return
	}

	_ = p.PushFrame(frame.LLMFullResponseStartFrame{}, pipeline.Downstream)
	for chunk := range ch {
		if ctx.Err() != nil {
			// Interrupted: keep draining so the provider goroutine exits,
			// but stop forwarding text.
			continue
		}
		if chunk.FinishReason == "error" {
			_ = p.PushFrame(frame.ErrorFrame{Err: errors.New(chunk.Text)}, pipeline.Downstream)
			break
		}
		if chunk.Text != "" {
			_ = p.PushFrame(frame.TextFrame{Text: chunk.Text}, pipeline.Downstream)
		}
	}
	_ = p.PushFrame(frame.LLMFullResponseEndFrame{}, pipeline.Downstream)
}

// Cleanup cancels any in-flight generation and joins the worker.
func (p *LLM) Cleanup() error {
	p.interrupt()
	p.wg.Wait()
	return nil
}

// convertMessages maps conversation history into the provider's type.
func convertMessages(in []frame.Message) []llm.Message {
	out := make([]llm.Message, 0, len(in))
	for _, m := range in {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content, Name: m.Name})
	}
	return out
}
