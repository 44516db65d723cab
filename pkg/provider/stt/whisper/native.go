package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

var _ stt.Provider = (*Native)(nil)

// Native implements stt.Provider with the whisper.cpp CGO bindings. The model
// is loaded once at startup and shared across all sessions; each inference
// creates its own whisper context, which is the unit of thread confinement in
// whisper.cpp.
type Native struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// NativeOption configures a Native provider.
type NativeOption func(*Native)

// WithNativeLanguage sets the default transcription language (e.g. "en",
// "zh"). Sessions may override it per stream.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *Native) { p.language = lang }
}

// WithNativeSampleRate sets the expected PCM sample rate in Hz.
func WithNativeSampleRate(rate int) NativeOption {
	return func(p *Native) { p.sampleRate = rate }
}

// WithNativeSilenceThresholdMs sets the consecutive-silence duration that
// closes an utterance.
func WithNativeSilenceThresholdMs(ms int) NativeOption {
	return func(p *Native) { p.silenceThresholdMs = ms }
}

// WithNativeMaxBufferDurationMs caps buffered audio before a forced flush.
func WithNativeMaxBufferDurationMs(ms int) NativeOption {
	return func(p *Native) { p.maxBufferDurationMs = ms }
}

// NewNative loads the ggml model at modelPath and warms it up with a short
// silent inference so the first real utterance does not pay the cold-start
// cost. The caller must Close the provider when done.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Native{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}

	if err := p.warmup(); err != nil {
		_ = model.Close()
		return nil, fmt.Errorf("whisper: warmup: %w", err)
	}
	return p, nil
}

// warmup runs one inference over silence to page the model weights in.
func (p *Native) warmup() error {
	n := int(warmupDuration.Seconds() * float64(p.sampleRate))
	_, err := p.transcribe(make([]float32, n), p.language)
	return err
}

// Close releases the shared model.
func (p *Native) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream opens a transcription session. Zero or empty fields in cfg fall
// back to the provider defaults.
func (p *Native) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr <= 0 {
		sr = p.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	seg := segmenterConfig{
		sampleRate:   sr,
		channels:     ch,
		silenceMs:    p.silenceThresholdMs,
		maxBufferMs:  p.maxBufferDurationMs,
		rmsThreshold: defaultRMSThreshold,
	}
	infer := func(_ context.Context, pcm []byte) (string, error) {
		return p.transcribe(pcmToFloat32Mono(pcm, ch), lang)
	}
	return startSession(ctx, seg, lang, infer), nil
}

// transcribe runs one batch inference on a fresh whisper context and joins
// the resulting segments.
func (p *Native) transcribe(samples []float32, language string) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", language, err)
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
