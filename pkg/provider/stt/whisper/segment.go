package whisper

// segmenterConfig parameterises the energy-based utterance segmenter shared by
// both whisper variants.
type segmenterConfig struct {
	sampleRate   int
	channels     int
	silenceMs    int
	maxBufferMs  int
	rmsThreshold float64
}

// segmenter accumulates PCM chunks and cuts them into utterances at silence
// boundaries. It is not goroutine-safe; each session confines its segmenter to
// the processing goroutine.
type segmenter struct {
	cfg segmenterConfig

	buf       []byte
	hadSpeech bool
	silenceMs int
}

func newSegmenter(cfg segmenterConfig) *segmenter {
	return &segmenter{cfg: cfg}
}

// feed consumes one chunk and returns a completed utterance, or nil if the
// current utterance is still open. Leading silence is discarded so an
// utterance always starts with speech.
func (g *segmenter) feed(chunk []byte) []byte {
	energy := rms(chunk)
	chunkMs := durationMs(len(chunk), g.cfg.sampleRate, g.cfg.channels)

	if energy < g.cfg.rmsThreshold {
		if !g.hadSpeech {
			return nil
		}
		g.buf = append(g.buf, chunk...)
		g.silenceMs += chunkMs
		if g.silenceMs >= g.cfg.silenceMs {
			return g.flush()
		}
		return nil
	}

	g.hadSpeech = true
	g.silenceMs = 0
	g.buf = append(g.buf, chunk...)
	if g.cfg.maxBufferMs > 0 && durationMs(len(g.buf), g.cfg.sampleRate, g.cfg.channels) >= g.cfg.maxBufferMs {
		return g.flush()
	}
	return nil
}

// flush returns the buffered utterance, if any, and resets the segmenter.
func (g *segmenter) flush() []byte {
	if !g.hadSpeech || len(g.buf) == 0 {
		g.buf = nil
		g.hadSpeech = false
		g.silenceMs = 0
		return nil
	}
	out := g.buf
	g.buf = nil
	g.hadSpeech = false
	g.silenceMs = 0
	return out
}
