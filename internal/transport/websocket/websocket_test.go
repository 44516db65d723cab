package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
)

// recorder captures the frames flowing between the input and output stages.
type recorder struct {
	pipeline.BaseProcessor

	mu     sync.Mutex
	frames []frame.Frame
}

func newRecorder() *recorder {
	r := &recorder{}
	r.InitName("recorder")
	return r
}

func (r *recorder) ProcessFrame(_ context.Context, f frame.Frame, dir pipeline.Direction) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return r.PushFrame(f, dir)
}

func (r *recorder) seen() []frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func framesOf[T frame.Frame](frames []frame.Frame) []T {
	var out []T
	for _, f := range frames {
		if tf, ok := f.(T); ok {
			out = append(out, tf)
		}
	}
	return out
}

// wsRig runs a transport pair against a real connection: the server side is
// wrapped in a pipeline task, the client side is handed to the test.
type wsRig struct {
	t      *testing.T
	client *websocket.Conn
	tr     *Transport
	rec    *recorder
	task   *pipeline.Task
	errCh  chan error
}

func startWSRig(t *testing.T, params Params) *wsRig {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.CloseNow() })

	var serverConn *websocket.Conn
	select {
	case serverConn = <-connCh:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection never arrived")
	}

	r := &wsRig{
		t:      t,
		client: client,
		tr:     New(serverConn, "client-1", params),
		rec:    newRecorder(),
		errCh:  make(chan error, 1),
	}
	r.task = pipeline.NewTask(
		pipeline.New(r.tr.Input(), r.rec, r.tr.Output()),
		pipeline.Params{AudioInSampleRate: params.AudioInSampleRate, AudioInChannels: params.AudioInChannels},
	)
	go func() { r.errCh <- r.task.Run(context.Background()) }()
	return r
}

func (r *wsRig) finish() {
	r.t.Helper()
	if err := r.task.QueueFrame(frame.EndFrame{}); err != nil {
		r.t.Fatalf("queue EndFrame: %v", err)
	}
	select {
	case err := <-r.errCh:
		if err != nil {
			r.t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		r.t.Fatal("task did not finish")
	}
}

func (r *wsRig) waitFor(cond func() bool, msg string) {
	r.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			r.t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// readText reads one JSON event from the client side.
func (r *wsRig) readText() serverEvent {
	r.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := r.client.Read(ctx)
	if err != nil {
		r.t.Fatalf("client read: %v", err)
	}
	if typ != websocket.MessageText {
		r.t.Fatalf("message type = %v, want text", typ)
	}
	var ev serverEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		r.t.Fatalf("unmarshal event: %v", err)
	}
	return ev
}

// ─── input ───────────────────────────────────────────────────────────────────

func TestInput_BinaryBecomesUserAudio(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{AudioInSampleRate: 24000, AudioInChannels: 1})

	pcm := []byte{1, 2, 3, 4}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		t.Fatalf("client write: %v", err)
	}

	r.waitFor(func() bool {
		return len(framesOf[frame.UserAudioRawFrame](r.rec.seen())) == 1
	}, "audio frame never arrived")
	r.finish()

	af := framesOf[frame.UserAudioRawFrame](r.rec.seen())[0]
	if !bytes.Equal(af.Audio, pcm) {
		t.Errorf("audio = %v", af.Audio)
	}
	if af.UserID != "client-1" || af.SampleRate != 24000 || af.Channels != 1 {
		t.Errorf("frame = %+v", af)
	}
}

func TestInput_SpeakMessage(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg := []byte(`{"type":"speak","data":{"text":"say this"}}`)
	if err := r.client.Write(ctx, websocket.MessageText, msg); err != nil {
		t.Fatalf("client write: %v", err)
	}

	r.waitFor(func() bool {
		return len(framesOf[frame.TTSSpeakFrame](r.rec.seen())) == 1
	}, "speak frame never arrived")
	r.finish()

	if got := framesOf[frame.TTSSpeakFrame](r.rec.seen())[0].Text; got != "say this" {
		t.Errorf("speak text = %q", got)
	}
}

func TestInput_MalformedMessageIgnored(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("client write: %v", err)
	}
	// A valid message after the bad one proves the reader survived.
	if err := r.client.Write(ctx, websocket.MessageText, []byte(`{"type":"speak","data":{"text":"ok"}}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}

	r.waitFor(func() bool {
		return len(framesOf[frame.TTSSpeakFrame](r.rec.seen())) == 1
	}, "reader died on malformed message")
	r.finish()
}

func TestTransport_ConnectionCallbacks(t *testing.T) {
	t.Parallel()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	tr := New(<-connCh, "client-1", Params{})
	var mu sync.Mutex
	var connected, disconnected []string
	tr.OnClientConnected(func(id string) {
		mu.Lock()
		connected = append(connected, id)
		mu.Unlock()
	})
	tr.OnClientDisconnected(func(id string) {
		mu.Lock()
		disconnected = append(disconnected, id)
		mu.Unlock()
	})

	task := pipeline.NewTask(pipeline.New(tr.Input(), tr.Output()), pipeline.Params{})
	errCh := make(chan error, 1)
	go func() { errCh <- task.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(connected)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connected callback never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	client.Close(websocket.StatusNormalClosure, "bye")
	deadline = time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(disconnected)
		mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnected callback never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := task.QueueFrame(frame.EndFrame{}); err != nil {
		t.Fatalf("queue EndFrame: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if connected[0] != "client-1" || disconnected[0] != "client-1" {
		t.Errorf("callbacks = %v / %v", connected, disconnected)
	}
}

// ─── output ──────────────────────────────────────────────────────────────────

func TestOutput_AudioWrittenAsBinary(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{AudioOutEnabled: true})

	pcm := make([]byte, 320)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	if err := r.task.QueueFrame(frame.TTSAudioRawFrame{AudioRawFrame: frame.AudioRawFrame{
		Audio: pcm, SampleRate: 16000, Channels: 1, SampleWidth: 2,
	}}); err != nil {
		t.Fatalf("queue audio: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := r.client.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	r.finish()

	if typ != websocket.MessageBinary {
		t.Fatalf("message type = %v, want binary", typ)
	}
	if !bytes.Equal(data, pcm) {
		t.Errorf("payload = %d bytes, want %d unchanged", len(data), len(pcm))
	}
}

func TestOutput_WAVHeaderAdded(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{AudioOutEnabled: true, AddWAVHeader: true})

	if err := r.task.QueueFrame(frame.TTSAudioRawFrame{AudioRawFrame: frame.AudioRawFrame{
		Audio: make([]byte, 320), SampleRate: 16000, Channels: 1, SampleWidth: 2,
	}}); err != nil {
		t.Fatalf("queue audio: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := r.client.Read(ctx)
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	r.finish()

	if len(data) < 44 || !bytes.Equal(data[:4], []byte("RIFF")) {
		t.Errorf("chunk is not WAV-framed: % x", data[:8])
	}
}

func TestOutput_AudioDisabled(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{AudioOutEnabled: false})

	if err := r.task.QueueFrame(frame.TTSAudioRawFrame{AudioRawFrame: frame.AudioRawFrame{
		Audio: make([]byte, 320), SampleRate: 16000, Channels: 1, SampleWidth: 2,
	}}); err != nil {
		t.Fatalf("queue audio: %v", err)
	}
	// A trailing event frame gives the client something to read; if the audio
	// had been written it would arrive first.
	if err := r.task.QueueFrame(frame.TTSStartedFrame{}); err != nil {
		t.Fatalf("queue event: %v", err)
	}

	if ev := r.readText(); ev.Type != "bot_started_speaking" {
		t.Errorf("first message = %q, audio was not suppressed", ev.Type)
	}
	r.finish()
}

func TestOutput_TranscriptionEvent(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{})

	if err := r.task.QueueFrame(frame.TranscriptionFrame{
		Text: "hello", UserID: "client-1", Language: "en",
	}); err != nil {
		t.Fatalf("queue frame: %v", err)
	}

	ev := r.readText()
	r.finish()

	if ev.Type != "transcription" {
		t.Fatalf("event type = %q", ev.Type)
	}
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		t.Fatalf("remarshal payload: %v", err)
	}
	var tp transcriptPayload
	if err := json.Unmarshal(payload, &tp); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if tp.Text != "hello" || !tp.Final || tp.Language != "en" {
		t.Errorf("payload = %+v", tp)
	}
}

func TestOutput_SpeakingStateEvents(t *testing.T) {
	t.Parallel()

	r := startWSRig(t, Params{})

	if err := r.task.QueueFrames(frame.TTSStartedFrame{}, frame.TTSStoppedFrame{}); err != nil {
		t.Fatalf("queue frames: %v", err)
	}

	if ev := r.readText(); ev.Type != "bot_started_speaking" {
		t.Errorf("first event = %q", ev.Type)
	}
	if ev := r.readText(); ev.Type != "bot_stopped_speaking" {
		t.Errorf("second event = %q", ev.Type)
	}
	r.finish()
}
