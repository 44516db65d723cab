// Package taskmgr tracks the execution units behind spawned bot sessions.
// A unit is either an in-process goroutine or an OS subprocess; the manager
// hands out one handle per unit, enforces the per-room bot cap, answers
// liveness queries, and tears everything down on shutdown.
package taskmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxBotsPerRoom caps concurrent bots admitted into one room.
const DefaultMaxBotsPerRoom = 10

// DefaultStopGrace bounds how long Cleanup waits for a unit before
// escalating.
const DefaultStopGrace = 5 * time.Second

// ErrRoomFull is returned by Spawn when the room already holds the maximum
// number of live bots.
var ErrRoomFull = errors.New("taskmgr: room bot limit reached")

// Status is the liveness of a spawned unit.
type Status string

const (
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// BotInfo describes one spawned bot for the listing endpoints.
type BotInfo struct {
	Handle int    `json:"pid"`
	BotID  string `json:"bot_id"`
	Room   string `json:"room"`
	Status Status `json:"status"`
}

type entry struct {
	unit  Unit
	room  string
	botID string

	// pending marks a slot reserved by Spawn before the unit has started.
	// Pending entries count against the room cap so concurrent spawns cannot
	// oversubscribe a room.
	pending bool
}

// occupies reports whether the entry counts against its room's cap.
func (e *entry) occupies() bool { return e.pending || e.unit.Alive() }

// Option configures a [Manager].
type Option func(*Manager)

// WithMaxBotsPerRoom overrides the per-room admission cap.
func WithMaxBotsPerRoom(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerRoom = n
		}
	}
}

// WithStopGrace overrides the per-unit grace period used by Cleanup.
func WithStopGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// Manager is the mutex-protected registry of live execution units.
type Manager struct {
	maxPerRoom int
	grace      time.Duration

	mu         sync.Mutex
	entries    map[int]*entry
	nextHandle int
}

// New creates a manager with the default room cap and grace period.
func New(opts ...Option) *Manager {
	m := &Manager{
		maxPerRoom: DefaultMaxBotsPerRoom,
		grace:      DefaultStopGrace,
		entries:    make(map[int]*entry),
		nextHandle: 1 << 20, // synthetic handles, clear of real pid ranges
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Spawn admits and starts a unit for the given room. It returns the unit's
// handle immediately; the session runs in the background. Admission fails
// with [ErrRoomFull] when the room is at capacity, counting live units and
// spawns still in flight. The slot is reserved before the unit starts, so two
// concurrent spawns into a room with one slot left cannot both be admitted.
func (m *Manager) Spawn(ctx context.Context, room, botID string, u Unit) (int, error) {
	m.mu.Lock()
	live := 0
	for _, e := range m.entries {
		if e.room == room && e.occupies() {
			live++
		}
	}
	if live >= m.maxPerRoom {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: room %q has %d bots", ErrRoomFull, room, live)
	}
	handle := m.nextHandle
	m.nextHandle++
	m.entries[handle] = &entry{unit: u, room: room, botID: botID, pending: true}
	m.mu.Unlock()

	if err := u.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.entries, handle)
		m.mu.Unlock()
		return 0, err
	}

	m.mu.Lock()
	e, ok := m.entries[handle]
	if !ok {
		// Cleanup emptied the registry while the unit was starting.
		e = &entry{unit: u, room: room, botID: botID}
	}
	e.pending = false
	if h := u.Handle(); h != 0 && h != handle {
		delete(m.entries, handle)
		handle = h
	}
	m.entries[handle] = e
	m.mu.Unlock()
	return handle, nil
}

// Status reports the liveness of the unit behind handle. ok is false for
// unknown handles.
func (m *Manager) Status(handle int) (status Status, ok bool) {
	m.mu.Lock()
	e, ok := m.entries[handle]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	if e.unit.Alive() {
		return StatusRunning, true
	}
	return StatusFinished, true
}

// Info returns the full registry record behind handle, for the status
// endpoint. ok is false for unknown handles.
func (m *Manager) Info(handle int) (info BotInfo, ok bool) {
	m.mu.Lock()
	e, ok := m.entries[handle]
	m.mu.Unlock()
	if !ok {
		return BotInfo{}, false
	}
	status := StatusFinished
	if e.unit.Alive() {
		status = StatusRunning
	}
	return BotInfo{Handle: handle, BotID: e.botID, Room: e.room, Status: status}, true
}

// Stop terminates the unit behind handle and removes it from the registry.
func (m *Manager) Stop(handle int) error {
	m.mu.Lock()
	e, ok := m.entries[handle]
	delete(m.entries, handle)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskmgr: unknown handle %d", handle)
	}
	return e.unit.Stop(m.grace)
}

// NumBots counts live bots in the room.
func (m *Manager) NumBots(room string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.room == room && e.unit.Alive() {
			n++
		}
	}
	return n
}

// Bots lists the bots spawned into the room, live and finished.
func (m *Manager) Bots(room string) []BotInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]BotInfo, 0)
	for handle, e := range m.entries {
		if e.room != room {
			continue
		}
		status := StatusFinished
		if e.unit.Alive() {
			status = StatusRunning
		}
		infos = append(infos, BotInfo{Handle: handle, BotID: e.botID, Room: e.room, Status: status})
	}
	return infos
}

// Cleanup stops every registered unit concurrently, each with the configured
// grace period, and returns the first failure. The registry is emptied
// regardless of individual outcomes.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	units := make([]Unit, 0, len(m.entries))
	for _, e := range m.entries {
		units = append(units, e.unit)
	}
	m.entries = make(map[int]*entry)
	m.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, u := range units {
		g.Go(func() error {
			return u.Stop(m.grace)
		})
	}
	return g.Wait()
}
