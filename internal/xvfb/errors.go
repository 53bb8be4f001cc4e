package xvfb

import (
	"errors"
	"fmt"

	"github.com/mvp-joe/xvfb-supervisor/internal/process"
)

var (
	// ErrCollision means the display was already locked and reuse is off.
	// Nothing was launched.
	ErrCollision = errors.New("display is already in use and reuse is disabled")

	// ErrStartTimeout means the lock file did not appear in time. The server
	// may or may not be running; see Error.Handle.
	ErrStartTimeout = errors.New("could not start Xvfb")

	// ErrStopTimeout means the lock file did not disappear in time. The
	// supervisor has already forgotten the process.
	ErrStopTimeout = errors.New("could not stop Xvfb")

	// ErrSpawnFailure marks launch errors. They are only delivered to the
	// controller's error listener; Start reports ErrStartTimeout instead.
	ErrSpawnFailure = process.ErrLaunch

	// ErrAlreadyRunning is returned by Adopt on a running supervisor.
	ErrAlreadyRunning = errors.New("supervisor is already running")
)

// Error describes a failed Start or Stop.
type Error struct {
	Op      string
	Display string

	// Handle is the process left behind by a timed-out Start, if any.
	// The supervisor does not kill it; the caller owns the cleanup.
	Handle *process.Handle

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("xvfb %s %s: %v", e.Op, e.Display, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
