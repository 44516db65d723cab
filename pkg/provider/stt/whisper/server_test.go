package whisper

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxpipe/voxpipe/pkg/provider/stt"
)

func TestServer_RequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(""); err == nil {
		t.Error("empty URL accepted")
	}
}

func TestServer_TranscribesViaREST(t *testing.T) {
	t.Parallel()

	var gotLanguage string
	var gotWAV []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotLanguage = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotWAV, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":" hello there \n"}`))
	}))
	t.Cleanup(srv.Close)

	p, err := NewServer(srv.URL, WithServerLanguage("en"), WithServerSilenceThresholdMs(300))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	s, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}
	defer s.Close()

	s.SendAudio(chunk(2000))
	for i := 0; i < 3; i++ {
		s.SendAudio(chunk(0))
	}

	select {
	case tr := <-s.Finals():
		if tr.Text != "hello there" {
			t.Errorf("text = %q, want trimmed %q", tr.Text, "hello there")
		}
		if tr.Language != "en" {
			t.Errorf("language = %q", tr.Language)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no transcript")
	}

	if gotLanguage != "en" {
		t.Errorf("submitted language = %q", gotLanguage)
	}
	if len(gotWAV) < 44 || !bytes.Equal(gotWAV[:4], []byte("RIFF")) {
		t.Errorf("upload is not WAV-framed (%d bytes)", len(gotWAV))
	}
}

func TestServer_InferenceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "error in body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"error":"failed to decode audio"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			p, err := NewServer(srv.URL)
			if err != nil {
				t.Fatalf("new server: %v", err)
			}
			if _, err := p.inferServer(context.Background(), chunk(2000), 16000, 1, "en"); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestServer_StreamConfigDefaults(t *testing.T) {
	t.Parallel()

	p, err := NewServer("http://localhost:9", WithServerLanguage("zh"))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	s, err := p.StartStream(context.Background(), stt.StreamConfig{})
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}
	defer s.Close()

	sess := s.(*session)
	if sess.language != "zh" {
		t.Errorf("language = %q", sess.language)
	}
	if sess.cfg.sampleRate != defaultSampleRate || sess.cfg.channels != 1 {
		t.Errorf("segmenter config = %+v", sess.cfg)
	}
}
