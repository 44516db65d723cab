package whisper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

// inferFunc transcribes one complete utterance of PCM audio. Implemented by
// the native bindings and by the whisper-server REST call.
type inferFunc func(ctx context.Context, pcm []byte) (string, error)

// session is the shared stt.SessionHandle implementation for both whisper
// variants. Segmentation state lives entirely in the processing goroutine.
type session struct {
	cfg      segmenterConfig
	language string
	infer    inferFunc

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	started time.Time
}

var _ stt.SessionHandle = (*session)(nil)

func startSession(ctx context.Context, cfg segmenterConfig, language string, infer inferFunc) *session {
	s := &session{
		cfg:      cfg,
		language: language,
		infer:    infer,
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, transcriptChanDepth),
		finals:   make(chan stt.Transcript, transcriptChanDepth),
		done:     make(chan struct{}),
		started:  time.Now(),
	}
	s.wg.Add(1)
	go s.processLoop(ctx)
	return s
}

// SendAudio queues a chunk of raw 16-bit little-endian PCM for segmentation.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("whisper: session is closed")
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errors.New("whisper: session is closed")
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Close terminates the session, transcribing any buffered speech first.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop owns segmentation and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	seg := newSegmenter(s.cfg)

	for {
		select {
		case <-ctx.Done():
			s.emit(ctx, seg.flush())
			return
		case <-s.done:
			s.emit(ctx, seg.flush())
			return
		case chunk := <-s.audioCh:
			s.emit(ctx, seg.feed(chunk))
		}
	}
}

// emit transcribes one utterance and publishes the result. A nil utterance is
// a no-op. Transcripts are dropped rather than blocking inference when a
// consumer has fallen behind.
func (s *session) emit(ctx context.Context, pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	dur := time.Duration(durationMs(len(pcm), s.cfg.sampleRate, s.cfg.channels)) * time.Millisecond
	start := time.Since(s.started) - dur
	if start < 0 {
		start = 0
	}

	text, err := s.infer(ctx, pcm)
	if err != nil {
		slog.Error("whisper: inference failed", "err", err)
		return
	}
	if text == "" {
		return
	}

	t := stt.Transcript{
		Text:     text,
		Language: s.language,
		Start:    start,
		Duration: dur,
	}
	select {
	case s.partials <- t:
	default:
	}
	t.IsFinal = true
	select {
	case s.finals <- t:
	default:
	}
}
