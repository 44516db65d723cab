// Package energy provides a dependency-free vad.Engine based on RMS signal
// energy. It is the fallback when no Silero model file is configured, and the
// deterministic engine of choice in tests.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

const (
	defaultStartFrames = 2
	defaultEndFrames   = 20

	// fullScale is the RMS value treated as probability 1.0. Normal speech
	// peaks well below the int16 maximum, so using the full range would
	// compress all probabilities into the bottom of the scale.
	fullScale = 8192.0
)

var _ vad.Engine = (*Engine)(nil)

// Engine creates energy-based VAD sessions.
type Engine struct {
	startFrames int
	endFrames   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithStartFrames sets how many consecutive speech frames open a segment.
func WithStartFrames(n int) Option {
	return func(e *Engine) { e.startFrames = n }
}

// WithEndFrames sets how many consecutive silence frames close a segment.
func WithEndFrames(n int) Option {
	return func(e *Engine) { e.endFrames = n }
}

// NewEngine creates the engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{startFrames: defaultStartFrames, endFrames: defaultEndFrames}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %dms", cfg.FrameSizeMs)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %.2f above speech threshold %.2f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	return &session{
		frameBytes: frameBytes,
		smoother:   vad.NewSmoother(cfg, e.startFrames, e.endFrames),
	}, nil
}

var _ vad.SessionHandle = (*session)(nil)

type session struct {
	mu         sync.Mutex
	frameBytes int
	smoother   *vad.Smoother
	closed     bool
}

// ProcessFrame implements vad.SessionHandle. The pseudo-probability is the
// frame's RMS energy normalised against fullScale and clamped to [0, 1].
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, errors.New("energy: session is closed")
	}
	if len(frame) != s.frameBytes {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, need %d", len(frame), s.frameBytes)
	}

	n := len(frame) / 2
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(uint16(frame[2*i]) | uint16(frame[2*i+1])<<8))
		sum += v * v
	}
	prob := math.Sqrt(sum/float64(n)) / fullScale
	if prob > 1 {
		prob = 1
	}
	return s.smoother.Feed(prob), nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smoother.Reset()
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
