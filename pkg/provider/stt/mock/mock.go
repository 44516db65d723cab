// Package mock provides a scripted stt.Provider for tests. Sessions record
// the audio they receive and let the test emit transcripts on demand.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*Session)(nil)
)

// Provider records StartStream calls and hands out mock sessions.
type Provider struct {
	mu sync.Mutex

	// StartErr, when non-nil, is returned by StartStream.
	StartErr error

	calls    []stt.StreamConfig
	sessions []*Session
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, cfg)
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Calls returns the StreamConfig of every StartStream call.
func (p *Provider) Calls() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.StreamConfig, len(p.calls))
	copy(out, p.calls)
	return out
}

// Sessions returns every session the provider has opened.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is a scripted stt.SessionHandle.
type Session struct {
	mu       sync.Mutex
	audio    [][]byte
	closed   bool
	partials chan stt.Transcript
	finals   chan stt.Transcript
}

// SendAudio records the chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.audio = append(s.audio, c)
	return nil
}

// SentAudio returns every chunk delivered via SendAudio.
func (s *Session) SentAudio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

// EmitPartial pushes an interim transcript to the session's consumer.
func (s *Session) EmitPartial(t stt.Transcript) {
	t.IsFinal = false
	s.partials <- t
}

// EmitFinal pushes a committed transcript to the session's consumer.
func (s *Session) EmitFinal(t stt.Transcript) {
	t.IsFinal = true
	s.finals <- t
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// Close marks the session closed and closes both transcript channels.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
