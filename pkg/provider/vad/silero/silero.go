// Package silero provides a vad.Engine backed by the Silero VAD v5 ONNX
// model running on ONNX Runtime.
//
// The model operates on exactly 512 samples (32 ms) of 16 kHz mono audio per
// inference and carries an RNN hidden state of shape [2, 1, 128] between
// windows. Each session owns its own ONNX session and state tensors so
// concurrent streams never share hidden state.
package silero

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

const (
	// RequiredSampleRate is the only sample rate Silero VAD v5 supports.
	RequiredSampleRate = 16000

	// windowSize is the number of float32 samples per inference call:
	// 512 samples = 32 ms at 16 kHz.
	windowSize = 512

	// FrameSizeMs is the frame duration sessions must be configured with.
	FrameSizeMs = windowSize * 1000 / RequiredSampleRate

	// stateSize is the hidden state dimension per RNN layer. The combined
	// state tensor has shape [2, 1, 128].
	stateSize = 128

	defaultStartFrames = 2  // 64 ms of speech opens a segment
	defaultEndFrames   = 15 // 480 ms of silence closes it
)

// ONNX Runtime environment initialisation happens once per process; the
// error is kept so later constructors surface it instead of proceeding with
// an uninitialised runtime.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

var _ vad.Engine = (*Engine)(nil)

// Engine creates Silero VAD sessions from a model file.
type Engine struct {
	modelPath   string
	libraryPath string
	startFrames int
	endFrames   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLibraryPath sets the path to the ONNX Runtime shared library. Without
// it the onnxruntime_go default lookup applies.
func WithLibraryPath(path string) Option {
	return func(e *Engine) { e.libraryPath = path }
}

// WithStartFrames sets how many consecutive speech windows open a segment.
func WithStartFrames(n int) Option {
	return func(e *Engine) { e.startFrames = n }
}

// WithEndFrames sets how many consecutive silence windows close a segment.
func WithEndFrames(n int) Option {
	return func(e *Engine) { e.endFrames = n }
}

// NewEngine initialises ONNX Runtime and validates that the model loads by
// opening and closing a throwaway session. modelPath points at the
// silero_vad.onnx file.
func NewEngine(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("silero: modelPath must not be empty")
	}

	e := &Engine{
		modelPath:   modelPath,
		startFrames: defaultStartFrames,
		endFrames:   defaultEndFrames,
	}
	for _, o := range opts {
		o(e)
	}

	ortInitOnce.Do(func() {
		if e.libraryPath != "" {
			ort.SetSharedLibraryPath(e.libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("silero: initialise onnxruntime: %w", ortInitErr)
	}

	// Warm up: load the model once so a bad path fails here, not on the
	// first client connection.
	probe, err := e.newInference()
	if err != nil {
		return nil, err
	}
	if _, err := probe.infer(make([]float32, windowSize)); err != nil {
		probe.destroy()
		return nil, fmt.Errorf("silero: warmup inference: %w", err)
	}
	probe.destroy()

	return e, nil
}

// NewSession implements vad.Engine. cfg.SampleRate must be 16000 and
// cfg.FrameSizeMs must be 32.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate != RequiredSampleRate {
		return nil, fmt.Errorf("silero: unsupported sample rate %d, need %d", cfg.SampleRate, RequiredSampleRate)
	}
	if cfg.FrameSizeMs != FrameSizeMs {
		return nil, fmt.Errorf("silero: unsupported frame size %dms, need %dms", cfg.FrameSizeMs, FrameSizeMs)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("silero: silence threshold %.2f above speech threshold %.2f",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	inf, err := e.newInference()
	if err != nil {
		return nil, err
	}
	return &session{
		inf:      inf,
		smoother: vad.NewSmoother(cfg, e.startFrames, e.endFrames),
	}, nil
}

// inference bundles an ONNX session with its reusable tensors.
type inference struct {
	session *ort.AdvancedSession

	inputTensor *ort.Tensor[float32] // [1, 512]
	stateTensor *ort.Tensor[float32] // [2, 1, 128]
	srTensor    *ort.Tensor[int64]   // scalar

	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]
}

func (e *Engine) newInference() (*inference, error) {
	inf := &inference{}
	fail := func(step string, err error) (*inference, error) {
		inf.destroy()
		return nil, fmt.Errorf("silero: %s: %w", step, err)
	}

	var err error
	if inf.inputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, windowSize)); err != nil {
		return fail("create input tensor", err)
	}
	if inf.stateTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fail("create state tensor", err)
	}
	if inf.srTensor, err = ort.NewTensor(ort.NewShape(1), []int64{RequiredSampleRate}); err != nil {
		return fail("create sr tensor", err)
	}
	if inf.outputTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		return fail("create output tensor", err)
	}
	if inf.stateNTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize)); err != nil {
		return fail("create stateN tensor", err)
	}

	// onnxruntime_go does not guarantee zeroed tensor memory.
	zero(inf.stateTensor.GetData())
	zero(inf.stateNTensor.GetData())

	inf.session, err = ort.NewAdvancedSession(
		e.modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inf.inputTensor, inf.stateTensor, inf.srTensor},
		[]ort.Value{inf.outputTensor, inf.stateNTensor},
		nil,
	)
	if err != nil {
		return fail("create session", err)
	}
	return inf, nil
}

// infer runs one window and carries the RNN hidden state forward.
func (inf *inference) infer(window []float32) (float64, error) {
	copy(inf.inputTensor.GetData(), window)
	if err := inf.session.Run(); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}
	prob := float64(inf.outputTensor.GetData()[0])
	copy(inf.stateTensor.GetData(), inf.stateNTensor.GetData())
	return prob, nil
}

func (inf *inference) resetState() {
	zero(inf.stateTensor.GetData())
}

func (inf *inference) destroy() {
	if inf.session != nil {
		inf.session.Destroy()
		inf.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{inf.inputTensor, inf.stateTensor, inf.outputTensor, inf.stateNTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	inf.inputTensor, inf.stateTensor, inf.outputTensor, inf.stateNTensor = nil, nil, nil, nil
	if inf.srTensor != nil {
		inf.srTensor.Destroy()
		inf.srTensor = nil
	}
}

var _ vad.SessionHandle = (*session)(nil)

// session is one Silero stream. The mutex guards against Close racing a
// final ProcessFrame during task teardown.
type session struct {
	mu       sync.Mutex
	inf      *inference
	smoother *vad.Smoother
	window   [windowSize]float32
	closed   bool
}

// ProcessFrame implements vad.SessionHandle. The frame must contain exactly
// one 32 ms window of 16 kHz mono PCM (1024 bytes).
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Event{}, errors.New("silero: session is closed")
	}
	if len(frame) != windowSize*2 {
		return vad.Event{}, fmt.Errorf("silero: frame is %d bytes, need %d (512 samples s16le)", len(frame), windowSize*2)
	}

	for i := 0; i < windowSize; i++ {
		u := uint16(frame[2*i]) | uint16(frame[2*i+1])<<8
		// Divide by 32768 so the full int16 range stays within [-1, 1).
		s.window[i] = float32(int16(u)) / 32768.0
	}

	prob, err := s.inf.infer(s.window[:])
	if err != nil {
		return vad.Event{}, err
	}
	return s.smoother.Feed(prob), nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.inf.resetState()
	s.smoother.Reset()
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.inf.destroy()
	return nil
}

func zero(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
