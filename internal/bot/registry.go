package bot

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a bot from its per-session configuration. Providers and
// transport wiring are captured by the closure at registration time.
type Constructor func(cfg Config) (Bot, error)

// Registry maps bot names to constructors. Names are registered once at
// startup; an unknown name at spawn time is an immediate error rather than a
// deferred failure inside the session.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a named constructor. Registering a duplicate name fails.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" {
		return fmt.Errorf("bot: register: name must not be empty")
	}
	if ctor == nil {
		return fmt.Errorf("bot: register %q: constructor must not be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("bot: register %q: already registered", name)
	}
	r.ctors[name] = ctor
	return nil
}

// New constructs a bot by name.
func (r *Registry) New(cfg Config) (Bot, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("bot: unknown bot %q (registered: %v)", cfg.Name, r.Names())
	}
	return ctor(cfg)
}

// Names returns the registered bot names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
