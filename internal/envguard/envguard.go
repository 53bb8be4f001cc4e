// Package envguard saves and restores the ambient DISPLAY variable around
// the lifetime of a supervised X server.
//
// A Guard holds a single saved value. It is not a stack: Activate must be
// followed by exactly one Deactivate before it can be activated again.
//
// DISPLAY is process-wide. Two guards backed by the real environment that
// are activated concurrently will overwrite each other's saved value; callers
// running several servers in one process must serialize Start/Stop.
package envguard

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// DisplayVar is the variable X clients read to find their server.
const DisplayVar = "DISPLAY"

var (
	// ErrAlreadyActive is returned by Activate when the saved slot is in use.
	ErrAlreadyActive = errors.New("environment guard already active")

	// ErrNotActive is returned by Deactivate when nothing was saved.
	ErrNotActive = errors.New("environment guard not active")
)

// Accessor reads and writes environment variables.
type Accessor interface {
	Lookup(key string) (string, bool)
	Set(key, value string) error
	Unset(key string) error
}

// OSEnv is the Accessor for the real process environment.
type OSEnv struct{}

func (OSEnv) Lookup(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnv) Set(key, value string) error      { return os.Setenv(key, value) }
func (OSEnv) Unset(key string) error           { return os.Unsetenv(key) }

// MapEnv is an in-memory Accessor, safe for concurrent use.
type MapEnv struct {
	mu   sync.Mutex
	vars map[string]string
}

// NewMapEnv returns a MapEnv seeded with vars.
func NewMapEnv(vars map[string]string) *MapEnv {
	m := &MapEnv{vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		m.vars[k] = v
	}
	return m
}

func (m *MapEnv) Lookup(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vars[key]
	return v, ok
}

func (m *MapEnv) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[key] = value
	return nil
}

func (m *MapEnv) Unset(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vars, key)
	return nil
}

// Guard swaps DISPLAY in and out.
type Guard struct {
	env    Accessor
	active bool
	saved  string
	wasSet bool
}

// New returns a Guard over env. A nil env means OSEnv.
func New(env Accessor) *Guard {
	if env == nil {
		env = OSEnv{}
	}
	return &Guard{env: env}
}

// Activate saves the current DISPLAY, which may be unset, and replaces it
// with display.
func (g *Guard) Activate(display string) error {
	if g.active {
		return ErrAlreadyActive
	}
	g.saved, g.wasSet = g.env.Lookup(DisplayVar)
	if err := g.env.Set(DisplayVar, display); err != nil {
		return err
	}
	g.active = true
	return nil
}

// Deactivate restores the value saved by Activate, unsetting DISPLAY if it
// was unset before.
func (g *Guard) Deactivate() error {
	if !g.active {
		return ErrNotActive
	}
	g.active = false
	if !g.wasSet {
		return g.env.Unset(DisplayVar)
	}
	return g.env.Set(DisplayVar, g.saved)
}

// Active reports whether a value is currently saved.
func (g *Guard) Active() bool {
	return g.active
}

// Environ returns base with DISPLAY replaced by display. It is the explicit
// environment handed to a child, independent of the Accessor.
func Environ(base []string, display string) []string {
	out := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, DisplayVar+"=") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, DisplayVar+"="+display)
}
