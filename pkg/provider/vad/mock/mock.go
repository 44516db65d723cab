// Package mock provides a scripted vad.Engine for tests.
package mock

import (
	"errors"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*Session)(nil)
)

// Engine records NewSession calls and hands out scripted sessions.
type Engine struct {
	mu sync.Mutex

	// NewSessionErr, when non-nil, is returned by NewSession.
	NewSessionErr error

	configs  []vad.Config
	sessions []*Session
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs = append(e.configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	s := &Session{}
	e.sessions = append(e.sessions, s)
	return s, nil
}

// Configs returns the config of every NewSession call.
func (e *Engine) Configs() []vad.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]vad.Config, len(e.configs))
	copy(out, e.configs)
	return out
}

// Sessions returns every session the engine has created.
func (e *Engine) Sessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, len(e.sessions))
	copy(out, e.sessions)
	return out
}

// Session is a scripted vad.SessionHandle. Queue events with Script; once
// the script is exhausted, ProcessFrame reports Silence.
type Session struct {
	mu sync.Mutex

	script []vad.Event
	frames int
	resets int
	closed bool
}

// Script appends events to be returned by subsequent ProcessFrame calls.
func (s *Session) Script(events ...vad.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, events...)
}

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(_ []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, errors.New("mock: session is closed")
	}
	s.frames++
	if len(s.script) == 0 {
		return vad.Event{Type: vad.Silence}, nil
	}
	ev := s.script[0]
	s.script = s.script[1:]
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Frames returns how many frames were processed.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Resets returns how many times Reset was called.
func (s *Session) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
