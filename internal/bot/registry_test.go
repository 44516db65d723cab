package bot

import (
	"context"
	"reflect"
	"strings"
	"testing"
)

type nopBot struct {
	lifecycle
	id string
}

func (b *nopBot) ID() string                { return b.id }
func (b *nopBot) Run(context.Context) error { return nil }

func TestRegistry_RegisterAndNew(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	var gotCfg Config
	if err := reg.Register("voice", func(cfg Config) (Bot, error) {
		gotCfg = cfg
		return &nopBot{id: cfg.BotID}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	b, err := reg.New(Config{Name: "voice", BotID: "b1", RoomURL: "https://rooms/demo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if b.ID() != "b1" {
		t.Errorf("bot id = %q", b.ID())
	}
	if gotCfg.RoomURL != "https://rooms/demo" {
		t.Errorf("constructor received %+v", gotCfg)
	}
}

func TestRegistry_UnknownNameListsRegistered(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.Register("voice", func(cfg Config) (Bot, error) { return &nopBot{}, nil })

	_, err := reg.New(Config{Name: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "voice") {
		t.Errorf("err = %v, want registered names listed", err)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	ctor := func(cfg Config) (Bot, error) { return &nopBot{}, nil }

	if err := reg.Register("voice", ctor); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := reg.Register("voice", ctor); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestRegistry_InvalidRegistrations(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()

	if err := reg.Register("", func(cfg Config) (Bot, error) { return nil, nil }); err == nil {
		t.Error("empty name accepted")
	}
	if err := reg.Register("voice", nil); err == nil {
		t.Error("nil constructor accepted")
	}
}

func TestRegistry_NamesSorted(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	ctor := func(cfg Config) (Bot, error) { return &nopBot{}, nil }
	for _, name := range []string{"webrtc", "voice", "echo"} {
		reg.Register(name, ctor)
	}

	if got := reg.Names(); !reflect.DeepEqual(got, []string{"echo", "voice", "webrtc"}) {
		t.Errorf("names = %v", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateInstantiated, "instantiated"},
		{StateAwaitingClient, "awaiting_client"},
		{StateRunning, "running"},
		{StateTerminated, "terminated"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestIntroMessage(t *testing.T) {
	t.Parallel()

	if got := introMessage("en"); got.Role != "user" || !strings.Contains(got.Content, "introduce") {
		t.Errorf("en intro = %+v", got)
	}
	if got := introMessage("zh"); !strings.Contains(got.Content, "中文") {
		t.Errorf("zh intro = %+v", got)
	}
	if got := introMessage(""); !strings.Contains(got.Content, "introduce") {
		t.Errorf("default intro = %+v", got)
	}
}
