package xvfb

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mvp-joe/xvfb-supervisor/internal/envguard"
)

// DefaultTimeout bounds both startup and shutdown waits.
const DefaultTimeout = 500 * time.Millisecond

// Options configure a Supervisor. They are copied at construction and not
// consulted again.
type Options struct {
	// DisplayNum pins the display number. Nil means auto-allocate from :99.
	DisplayNum *int

	// Reuse accepts a display whose lock file already exists instead of
	// failing with ErrCollision. No process is launched in that case.
	Reuse bool

	// Timeout is the maximum wait for the lock file to appear on Start and
	// to disappear on Stop. Zero means DefaultTimeout.
	Timeout time.Duration

	// Silent discards the server's stderr.
	Silent bool

	// XvfbArgs are passed to the server after the display identifier.
	XvfbArgs []string

	// Binary is the server executable. Empty means "Xvfb" from PATH.
	Binary string

	// LockDir is where the server writes .X<n>-lock. Empty means /tmp.
	LockDir string

	// Stderr receives the server's diagnostics unless Silent. Nil means
	// os.Stderr.
	Stderr io.Writer

	// Env is where DISPLAY is saved and restored. Nil means the real
	// process environment.
	Env envguard.Accessor

	// Detach starts the server in its own process group.
	Detach bool

	// Logger receives lifecycle events. Nil discards them.
	Logger *slog.Logger
}

// Validate reports options that cannot describe a display.
func (o Options) Validate() error {
	if o.DisplayNum != nil && *o.DisplayNum < 0 {
		return errors.New("display number must not be negative")
	}
	if o.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// Int returns a pointer to n, for Options.DisplayNum.
func Int(n int) *int {
	return &n
}
