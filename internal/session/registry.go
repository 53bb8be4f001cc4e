// Package session records display servers started with `xvfbctl start
// --detach` so later invocations can find and stop them.
//
// Sessions live in a YAML file in the state directory. Every read-modify-
// write holds an exclusive flock on a sibling lock file, so concurrent
// xvfbctl processes see a consistent registry. The registry is bookkeeping
// only: whether a display is up is still decided by its X lock file.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	stateFile = "sessions.yml"
	lockFile  = "sessions.lock"
	logDir    = "logs"
)

// ErrNotFound is returned when no session is recorded for a display.
var ErrNotFound = errors.New("session not found")

// Session is one detached display server.
type Session struct {
	ID        string    `yaml:"id"`
	Display   string    `yaml:"display"`
	PID       int       `yaml:"pid"`
	LockFile  string    `yaml:"lock_file"`
	Binary    string    `yaml:"binary"`
	Args      []string  `yaml:"args,omitempty"`
	LogFile   string    `yaml:"log_file,omitempty"`
	StartedAt time.Time `yaml:"started_at"`
}

type stateDoc struct {
	Sessions []Session `yaml:"sessions"`
}

// Registry is the on-disk set of sessions.
type Registry struct {
	dir  string
	lock *flock.Flock
}

// Open returns the registry in dir, creating the directory if needed.
func Open(dir string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(dir, logDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Registry{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

// Dir returns the state directory.
func (r *Registry) Dir() string {
	return r.dir
}

// LogPath returns where a detached server for display writes its stderr.
func (r *Registry) LogPath(display string) string {
	return filepath.Join(r.dir, logDir, "Xvfb"+display+".log")
}

// Add records s, replacing any session on the same display. An empty ID is
// filled in with a new UUID and a zero StartedAt with the current time.
func (r *Registry) Add(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	err := r.update(func(doc *stateDoc) {
		doc.Sessions = without(doc.Sessions, s.Display)
		doc.Sessions = append(doc.Sessions, s)
	})
	return s, err
}

// Remove forgets the session on display. Removing an unknown display
// returns ErrNotFound.
func (r *Registry) Remove(display string) error {
	found := false
	err := r.update(func(doc *stateDoc) {
		before := len(doc.Sessions)
		doc.Sessions = without(doc.Sessions, display)
		found = len(doc.Sessions) != before
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, display)
	}
	return nil
}

// Get returns the session on display.
func (r *Registry) Get(display string) (Session, error) {
	sessions, err := r.List()
	if err != nil {
		return Session{}, err
	}
	for _, s := range sessions {
		if s.Display == display {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrNotFound, display)
}

// List returns all sessions ordered by start time.
func (r *Registry) List() ([]Session, error) {
	var doc stateDoc
	err := r.withLock(func() error {
		var err error
		doc, err = r.read()
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(doc.Sessions, func(i, j int) bool {
		return doc.Sessions[i].StartedAt.Before(doc.Sessions[j].StartedAt)
	})
	return doc.Sessions, nil
}

// Prune drops sessions for which keep returns false and returns them.
func (r *Registry) Prune(keep func(Session) bool) ([]Session, error) {
	var dropped []Session
	err := r.update(func(doc *stateDoc) {
		kept := doc.Sessions[:0]
		for _, s := range doc.Sessions {
			if keep(s) {
				kept = append(kept, s)
			} else {
				dropped = append(dropped, s)
			}
		}
		doc.Sessions = kept
	})
	return dropped, err
}

func (r *Registry) update(fn func(*stateDoc)) error {
	return r.withLock(func() error {
		doc, err := r.read()
		if err != nil {
			return err
		}
		fn(&doc)
		return r.write(doc)
	})
}

func (r *Registry) withLock(fn func() error) error {
	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock session registry: %w", err)
	}
	defer r.lock.Unlock()
	return fn()
}

func (r *Registry) read() (stateDoc, error) {
	var doc stateDoc
	data, err := os.ReadFile(filepath.Join(r.dir, stateFile))
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("failed to read session registry: %w", err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse session registry: %w", err)
	}
	return doc, nil
}

// write replaces the state file atomically.
func (r *Registry) write(doc stateDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode session registry: %w", err)
	}

	path := filepath.Join(r.dir, stateFile)
	tmp, err := os.CreateTemp(r.dir, stateFile+".*")
	if err != nil {
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write session registry: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func without(sessions []Session, display string) []Session {
	out := sessions[:0]
	for _, s := range sessions {
		if s.Display != display {
			out = append(out, s)
		}
	}
	return out
}
