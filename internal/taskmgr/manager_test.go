package taskmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ─── test unit ───────────────────────────────────────────────────────────────

// fakeUnit is a scripted Unit with controllable liveness.
type fakeUnit struct {
	handle   int
	alive    bool
	startErr error
	stopErr  error
	stopped  bool
}

func (u *fakeUnit) Start(context.Context) error {
	if u.startErr != nil {
		return u.startErr
	}
	u.alive = true
	return nil
}

func (u *fakeUnit) Handle() int { return u.handle }
func (u *fakeUnit) Alive() bool { return u.alive }

func (u *fakeUnit) Stop(time.Duration) error {
	u.stopped = true
	u.alive = false
	return u.stopErr
}

// blockingUnit parks inside Start until released, letting tests hold a spawn
// mid-flight.
type blockingUnit struct {
	entered chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	alive bool
}

func newBlockingUnit() *blockingUnit {
	return &blockingUnit{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (u *blockingUnit) Start(context.Context) error {
	close(u.entered)
	<-u.gate
	u.mu.Lock()
	u.alive = true
	u.mu.Unlock()
	return nil
}

func (u *blockingUnit) Handle() int { return 0 }

func (u *blockingUnit) Alive() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.alive
}

func (u *blockingUnit) Stop(time.Duration) error {
	u.mu.Lock()
	u.alive = false
	u.mu.Unlock()
	return nil
}

// ─── manager ─────────────────────────────────────────────────────────────────

func TestManager_SpawnAssignsSyntheticHandle(t *testing.T) {
	t.Parallel()
	m := New()

	h1, err := m.Spawn(context.Background(), "room-a", "bot-1", &fakeUnit{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := m.Spawn(context.Background(), "room-a", "bot-2", &fakeUnit{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h1 < 1<<20 {
		t.Errorf("handle = %d, want synthetic range", h1)
	}
	if h1 == h2 {
		t.Errorf("handles collide: %d", h1)
	}
}

func TestManager_SpawnKeepsProcessPid(t *testing.T) {
	t.Parallel()
	m := New()

	h, err := m.Spawn(context.Background(), "room-a", "bot-1", &fakeUnit{handle: 4242})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 4242 {
		t.Errorf("handle = %d, want the unit's own pid 4242", h)
	}
}

func TestManager_RoomCap(t *testing.T) {
	t.Parallel()
	m := New(WithMaxBotsPerRoom(2))

	for i := 0; i < 2; i++ {
		if _, err := m.Spawn(context.Background(), "room-a", "bot", &fakeUnit{}); err != nil {
			t.Fatalf("spawn %d: unexpected error: %v", i, err)
		}
	}
	_, err := m.Spawn(context.Background(), "room-a", "bot", &fakeUnit{})
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}

	// A different room is unaffected.
	if _, err := m.Spawn(context.Background(), "room-b", "bot", &fakeUnit{}); err != nil {
		t.Fatalf("room-b spawn: unexpected error: %v", err)
	}
}

func TestManager_ConcurrentSpawnHonorsCap(t *testing.T) {
	t.Parallel()
	m := New(WithMaxBotsPerRoom(1))

	first := newBlockingUnit()
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Spawn(context.Background(), "room-a", "bot-1", first)
		errCh <- err
	}()

	// Once the first spawn is inside Start, its slot is already reserved; a
	// second spawn racing it must be turned away, not double-admitted.
	select {
	case <-first.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first spawn never started its unit")
	}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-2", &fakeUnit{}); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("racing spawn err = %v, want ErrRoomFull", err)
	}

	close(first.gate)
	if err := <-errCh; err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if n := m.NumBots("room-a"); n != 1 {
		t.Errorf("NumBots = %d, want 1", n)
	}
}

func TestManager_StartFailureReleasesSlot(t *testing.T) {
	t.Parallel()
	m := New(WithMaxBotsPerRoom(1))

	failed := &fakeUnit{startErr: errors.New("exec: not found")}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-1", failed); err == nil {
		t.Fatal("expected start error")
	}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-2", &fakeUnit{}); err != nil {
		t.Fatalf("slot not released after start failure: %v", err)
	}
}

func TestManager_CapCountsOnlyLiveUnits(t *testing.T) {
	t.Parallel()
	m := New(WithMaxBotsPerRoom(1))

	dead := &fakeUnit{}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-1", dead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dead.alive = false

	if _, err := m.Spawn(context.Background(), "room-a", "bot-2", &fakeUnit{}); err != nil {
		t.Fatalf("spawn after death: unexpected error: %v", err)
	}
}

func TestManager_Status(t *testing.T) {
	t.Parallel()
	m := New()

	u := &fakeUnit{}
	h, err := m.Spawn(context.Background(), "room-a", "bot-1", u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s, ok := m.Status(h); !ok || s != StatusRunning {
		t.Errorf("Status = %q, %v; want running, true", s, ok)
	}

	u.alive = false
	if s, ok := m.Status(h); !ok || s != StatusFinished {
		t.Errorf("Status = %q, %v; want finished, true", s, ok)
	}

	if _, ok := m.Status(99999); ok {
		t.Error("unknown handle reported ok")
	}
}

func TestManager_NumBotsAndBots(t *testing.T) {
	t.Parallel()
	m := New()

	live := &fakeUnit{}
	dead := &fakeUnit{}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-live", live); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Spawn(context.Background(), "room-a", "bot-dead", dead); err != nil {
		t.Fatal(err)
	}
	dead.alive = false

	if n := m.NumBots("room-a"); n != 1 {
		t.Errorf("NumBots = %d, want 1 (only live units count)", n)
	}
	if n := m.NumBots("room-b"); n != 0 {
		t.Errorf("NumBots(room-b) = %d, want 0", n)
	}

	bots := m.Bots("room-a")
	if len(bots) != 2 {
		t.Fatalf("Bots = %d entries, want 2 (finished units still listed)", len(bots))
	}
	statuses := map[string]Status{}
	for _, b := range bots {
		statuses[b.BotID] = b.Status
	}
	if statuses["bot-live"] != StatusRunning || statuses["bot-dead"] != StatusFinished {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestManager_StopRemovesEntry(t *testing.T) {
	t.Parallel()
	m := New()

	u := &fakeUnit{}
	h, err := m.Spawn(context.Background(), "room-a", "bot-1", u)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Stop(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.stopped {
		t.Error("unit was not stopped")
	}
	if _, ok := m.Status(h); ok {
		t.Error("stopped handle still registered")
	}

	if err := m.Stop(h); err == nil {
		t.Error("second Stop should fail for unknown handle")
	}
}

func TestManager_Cleanup(t *testing.T) {
	t.Parallel()
	m := New()

	units := []*fakeUnit{{}, {}, {stopErr: errors.New("stuck")}}
	for i, u := range units {
		if _, err := m.Spawn(context.Background(), "room-a", "bot", u); err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
	}

	err := m.Cleanup(context.Background())
	if err == nil {
		t.Fatal("expected the stuck unit's error")
	}
	for i, u := range units {
		if !u.stopped {
			t.Errorf("unit %d was not stopped", i)
		}
	}
	if n := m.NumBots("room-a"); n != 0 {
		t.Errorf("NumBots after Cleanup = %d, want 0", n)
	}
}

// ─── goroutine unit ──────────────────────────────────────────────────────────

func TestGoroutineUnit_Lifecycle(t *testing.T) {
	t.Parallel()

	u := NewGoroutineUnit(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	if u.Alive() {
		t.Error("alive before Start")
	}
	if err := u.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !u.Alive() {
		t.Error("not alive after Start")
	}
	if u.Handle() != 0 {
		t.Errorf("Handle = %d, want 0 for goroutine units", u.Handle())
	}

	if err := u.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if u.Alive() {
		t.Error("alive after Stop")
	}
}

func TestGoroutineUnit_StartTwice(t *testing.T) {
	t.Parallel()

	u := NewGoroutineUnit(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if err := u.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer u.Stop(time.Second)

	if err := u.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
}

func TestGoroutineUnit_SurvivesParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	u := NewGoroutineUnit(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	if err := u.Start(ctx); err != nil {
		t.Fatal(err)
	}

	// Cancelling the spawning context (an HTTP request ending) must not kill
	// the session.
	cancel()
	time.Sleep(20 * time.Millisecond)
	if !u.Alive() {
		t.Fatal("session died with the spawning context")
	}
	if err := u.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestGoroutineUnit_StopTimesOut(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	u := NewGoroutineUnit(func(ctx context.Context) error {
		<-block
		return nil
	})
	if err := u.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := u.Stop(10 * time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error from Stop")
	}
	close(block)
}

func TestGoroutineUnit_Err(t *testing.T) {
	t.Parallel()

	want := errors.New("session failed")
	u := NewGoroutineUnit(func(context.Context) error { return want })
	if err := u.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Session returns immediately.
	deadline := time.Now().Add(time.Second)
	for u.Alive() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !errors.Is(u.Err(), want) {
		t.Errorf("Err = %v, want %v", u.Err(), want)
	}
}
