package watcher

import "context"

// LockWatcher reports X lock files appearing and disappearing.
type LockWatcher interface {
	// WaitFor blocks until the lock file for display exists (present) or is
	// gone (!present), or ctx is done.
	WaitFor(ctx context.Context, display string, present bool) error

	// Events streams lock changes for every display in the directory until
	// ctx is done.
	Events(ctx context.Context) (<-chan Event, error)

	// Close stops the watcher and cleans up resources.
	Close() error
}
