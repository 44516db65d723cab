package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voxpipe/voxpipe/pkg/audio"
	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

var _ stt.Provider = (*Server)(nil)

// Server implements stt.Provider against a running whisper-server binary,
// submitting each segmented utterance as a WAV upload to POST /inference.
type Server struct {
	client   *resty.Client
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// ServerOption configures a Server provider.
type ServerOption func(*Server)

// WithServerLanguage sets the default transcription language.
func WithServerLanguage(lang string) ServerOption {
	return func(p *Server) { p.language = lang }
}

// WithServerSampleRate sets the expected PCM sample rate in Hz.
func WithServerSampleRate(rate int) ServerOption {
	return func(p *Server) { p.sampleRate = rate }
}

// WithServerSilenceThresholdMs sets the consecutive-silence duration that
// closes an utterance.
func WithServerSilenceThresholdMs(ms int) ServerOption {
	return func(p *Server) { p.silenceThresholdMs = ms }
}

// WithServerTimeout sets the per-inference HTTP timeout.
func WithServerTimeout(d time.Duration) ServerOption {
	return func(p *Server) { p.client.SetTimeout(d) }
}

// NewServer creates a provider that talks to the whisper-server REST API at
// serverURL (e.g. "http://localhost:8080").
func NewServer(serverURL string, opts ...ServerOption) (*Server, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Server{
		client:              resty.New().SetBaseURL(strings.TrimRight(serverURL, "/")).SetTimeout(30 * time.Second),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a transcription session. Zero or empty fields in cfg fall
// back to the provider defaults.
func (p *Server) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
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
	infer := func(ctx context.Context, pcm []byte) (string, error) {
		return p.inferServer(ctx, pcm, sr, ch, lang)
	}
	return startSession(ctx, seg, lang, infer), nil
}

// inferenceResponse is the JSON body returned by POST /inference.
type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// inferServer wraps the utterance in a WAV container and submits it.
func (p *Server) inferServer(ctx context.Context, pcm []byte, sampleRate, channels int, language string) (string, error) {
	wav := audio.WAV(pcm, sampleRate, channels, bitsPerSample)

	var out inferenceResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetFileReader("file", "utterance.wav", bytes.NewReader(wav)).
		SetFormData(map[string]string{
			"language":        language,
			"response_format": "json",
		}).
		SetResult(&out).
		Post("/inference")
	if err != nil {
		return "", fmt.Errorf("whisper: inference request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("whisper: inference: unexpected status %d", resp.StatusCode())
	}
	if out.Error != "" {
		return "", fmt.Errorf("whisper: inference: %s", out.Error)
	}
	return strings.TrimSpace(out.Text), nil
}
