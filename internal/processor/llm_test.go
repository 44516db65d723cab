package processor

import (
	"errors"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/llm"
	llmmock "github.com/voxpipe/voxpipe/pkg/provider/llm/mock"
)

func messagesFrame(texts ...string) frame.LLMMessagesFrame {
	var msgs []frame.Message
	for _, t := range texts {
		msgs = append(msgs, frame.Message{Role: "user", Content: t})
	}
	return frame.LLMMessagesFrame{Messages: msgs}
}

func TestLLM_StreamsResponseAsFrames(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Script: [][]llm.Chunk{{
		{Text: "The door "},
		{Text: "is open."},
		{FinishReason: "stop"},
	}}}
	r := startRig(t, NewLLM(p), pipeline.Params{})
	r.queue(messagesFrame("open the door"))
	r.finish()

	out := r.out.downstream()
	if n := len(framesOf[frame.LLMFullResponseStartFrame](out)); n != 1 {
		t.Fatalf("got %d response start frames, want 1", n)
	}
	texts := framesOf[frame.TextFrame](out)
	if len(texts) != 2 || texts[0].Text != "The door " || texts[1].Text != "is open." {
		t.Errorf("text frames = %+v", texts)
	}
	if n := len(framesOf[frame.LLMFullResponseEndFrame](out)); n != 1 {
		t.Errorf("got %d response end frames, want 1", n)
	}
}

func TestLLM_RequestCarriesOptions(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{}
	stage := NewLLM(p,
		WithSystemPrompt("You are terse."),
		WithTemperature(0.2),
		WithMaxTokens(128),
	)
	r := startRig(t, stage, pipeline.Params{})
	r.queue(messagesFrame("hi"))
	r.finish()

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	req := calls[0]
	if req.SystemPrompt != "You are terse." || req.Temperature != 0.2 || req.MaxTokens != 128 {
		t.Errorf("request = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestLLM_ProviderErrorBecomesErrorFrame(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Err: errors.New("rate limited")}
	r := startRig(t, NewLLM(p), pipeline.Params{})
	r.queue(messagesFrame("hi"))
	r.finish()

	out := r.out.downstream()
	errs := framesOf[frame.ErrorFrame](out)
	if len(errs) != 1 {
		t.Fatalf("got %d error frames, want 1", len(errs))
	}
	if errs[0].Fatal {
		t.Error("provider error marked fatal")
	}
	if n := len(framesOf[frame.LLMFullResponseStartFrame](out)); n != 0 {
		t.Errorf("got %d response start frames after failed request", n)
	}
}

func TestLLM_InterruptionStopsGeneration(t *testing.T) {
	t.Parallel()

	// A long, slow response so the interruption lands mid-stream.
	chunks := make([]llm.Chunk, 100)
	for i := range chunks {
		chunks[i] = llm.Chunk{Text: "word "}
	}
	p := &llmmock.Provider{Script: [][]llm.Chunk{chunks}, ChunkDelay: 10 * time.Millisecond}

	r := startRig(t, NewLLM(p), pipeline.Params{})
	r.queueRaw(messagesFrame("tell me everything"))
	waitFor(t, func() bool {
		return len(framesOf[frame.TextFrame](r.out.downstream())) >= 1
	}, "generation never started")

	r.queueRaw(frame.StartInterruptionFrame{})
	waitFor(t, func() bool {
		return len(framesOf[frame.LLMFullResponseEndFrame](r.out.downstream())) == 1
	}, "response never ended after interruption")
	r.finish()

	if n := len(framesOf[frame.TextFrame](r.out.downstream())); n >= len(chunks) {
		t.Errorf("all %d chunks forwarded despite interruption", n)
	}
}

func TestLLM_MessagesFrameTerminatesAtStage(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{}
	r := startRig(t, NewLLM(p), pipeline.Params{})
	r.queue(messagesFrame("hi"))
	r.finish()

	if got := framesOf[frame.LLMMessagesFrame](r.out.downstream()); len(got) != 0 {
		t.Errorf("%d messages frames leaked downstream", len(got))
	}
}
