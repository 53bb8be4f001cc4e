// Package xvfb supervises one headless X server: it picks a display,
// launches Xvfb on it, and blocks until the server's lock file says it is
// up, and later kills it and blocks until the lock file is gone.
//
// A Supervisor is not safe for concurrent use. Start and Stop block the
// calling goroutine for up to Options.Timeout. Supervisors backed by the
// real environment share DISPLAY, so Start/Stop on different supervisors in
// one process must not overlap.
package xvfb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	"github.com/mvp-joe/xvfb-supervisor/internal/envguard"
	xlog "github.com/mvp-joe/xvfb-supervisor/internal/log"
	"github.com/mvp-joe/xvfb-supervisor/internal/poll"
	"github.com/mvp-joe/xvfb-supervisor/internal/process"
)

// State is the supervisor's lifecycle position.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Supervisor owns one display server session.
type Supervisor struct {
	opts   Options
	probe  *display.Probe
	alloc  *display.Allocator
	ctrl   *process.Controller
	guard  *envguard.Guard
	poller poll.Poller
	logger *slog.Logger

	resolved string
	state    State
	handle   *process.Handle

	// attached is set when Start found the display already locked in reuse
	// mode and launched nothing.
	attached bool
}

// New returns an idle Supervisor. It does not touch the filesystem or the
// environment until Display or Start is called.
func New(opts Options) (*Supervisor, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	opts.XvfbArgs = append([]string(nil), opts.XvfbArgs...)

	logger := opts.Logger
	if logger == nil {
		logger = xlog.Discard()
	}
	logger = xlog.WithComponent(logger, "xvfb")

	probe := display.NewProbe(opts.LockDir)
	s := &Supervisor{
		opts:   opts,
		probe:  probe,
		alloc:  display.NewAllocator(probe, opts.DisplayNum, opts.Reuse),
		guard:  envguard.New(opts.Env),
		logger: logger,
	}
	s.ctrl = process.NewController(opts.Binary, probe, opts.Stderr, s.asyncError)
	return s, nil
}

// asyncError receives launch failures and unexpected exits from the
// controller. Start does not look at them: by the time one arrives the
// caller is blocked in the readiness wait, and the wait's outcome is what
// gets reported.
func (s *Supervisor) asyncError(err error) {
	s.logger.Debug("ignoring asynchronous server error", xlog.Error(err))
}

// Display returns the display identifier, allocating it on first use.
// The result never changes for the life of the Supervisor.
func (s *Supervisor) Display() string {
	if s.resolved == "" {
		s.resolved = s.alloc.Resolve()
	}
	return s.resolved
}

// LockFile returns the path whose existence means the server is up.
func (s *Supervisor) LockFile() string {
	return s.probe.PathFor(s.Display())
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return s.state
}

// Running reports whether Start has succeeded without a matching Stop.
func (s *Supervisor) Running() bool {
	return s.state == Running
}

// Attached reports whether the running session joined an existing server
// instead of launching one.
func (s *Supervisor) Attached() bool {
	return s.attached
}

// Handle returns the launched process, or nil when idle or attached.
func (s *Supervisor) Handle() *process.Handle {
	return s.handle
}

// Start launches the server and blocks until its lock file exists.
//
// If the supervisor is already running, Start returns the current handle.
// If the display is locked and reuse is off, Start fails with ErrCollision
// without launching anything. If the display is locked and reuse is on,
// Start attaches and returns a nil handle. If the lock file does not appear
// within the timeout, Start fails with ErrStartTimeout; a launched process
// is left running and returned in the Error's Handle field.
//
// On failure DISPLAY is put back the way it was and the supervisor is idle.
func (s *Supervisor) Start() (*process.Handle, error) {
	if s.state == Running {
		return s.handle, nil
	}

	d := s.Display()
	lockFile := s.probe.PathFor(d)
	logger := xlog.WithDisplay(s.logger, d)
	s.state = Starting

	if err := s.guard.Activate(d); err != nil {
		s.state = Idle
		return nil, &Error{Op: "start", Display: d, Err: err}
	}

	h, err := s.ctrl.Spawn(process.SpawnRequest{
		Display: d,
		Args:    s.opts.XvfbArgs,
		Env:     envguard.Environ(os.Environ(), d),
		Reuse:   s.opts.Reuse,
		Silent:  s.opts.Silent,
		Detach:  s.opts.Detach,
	})
	if err != nil {
		s.abortStart()
		if errors.Is(err, process.ErrDisplayInUse) {
			err = ErrCollision
		}
		return nil, &Error{Op: "start", Display: d, Err: err}
	}

	began := time.Now()
	ready := func() bool { return s.probe.Exists(lockFile) }
	if err := s.poller.WaitUntil(ready, s.opts.Timeout); err != nil {
		s.abortStart()
		logger.Warn("display server did not become ready",
			xlog.LockFileKey, lockFile,
			xlog.DurationKey, time.Since(began).Milliseconds())
		return nil, &Error{Op: "start", Display: d, Handle: h, Err: ErrStartTimeout}
	}

	s.handle = h
	s.attached = h == nil
	s.state = Running

	if s.attached {
		logger.Info("attached to running display server", xlog.LockFileKey, lockFile)
	} else {
		logger.Info("display server ready",
			xlog.PIDKey, h.Pid(),
			xlog.DurationKey, time.Since(began).Milliseconds())
	}
	return h, nil
}

// abortStart returns a failed Start to idle and gives DISPLAY back.
func (s *Supervisor) abortStart() {
	s.restoreEnv()
	s.state = Idle
}

// Stop kills the server and blocks until its lock file is gone.
//
// Stop on an idle supervisor is a no-op. The kill signal is sent without
// waiting for the process to exit, and the supervisor forgets the process
// immediately, so a Stop that fails with ErrStopTimeout still leaves the
// supervisor idle. An attached session launched nothing, so Stop only
// restores DISPLAY and leaves the shared server alone.
func (s *Supervisor) Stop() error {
	if s.state != Running {
		return nil
	}

	d := s.Display()
	lockFile := s.probe.PathFor(d)
	logger := xlog.WithDisplay(s.logger, d)
	s.state = Stopping

	if s.attached {
		s.attached = false
		s.restoreEnv()
		s.state = Idle
		logger.Info("detached from shared display server")
		return nil
	}

	if err := s.ctrl.Terminate(s.handle); err != nil {
		logger.Debug("kill signal not delivered", xlog.Error(err))
	}
	s.handle = nil
	s.restoreEnv()

	began := time.Now()
	gone := func() bool { return !s.probe.Exists(lockFile) }
	err := s.poller.WaitUntil(gone, s.opts.Timeout)
	s.state = Idle
	if err != nil {
		logger.Warn("display server lock file still present",
			xlog.LockFileKey, lockFile,
			xlog.DurationKey, time.Since(began).Milliseconds())
		return &Error{Op: "stop", Display: d, Err: ErrStopTimeout}
	}

	logger.Info("display server stopped", xlog.DurationKey, time.Since(began).Milliseconds())
	return nil
}

// Adopt makes an idle supervisor responsible for a server launched
// elsewhere, typically a detached server recorded by an earlier xvfbctl
// invocation, so that Stop can shut it down. DISPLAY is not touched.
func (s *Supervisor) Adopt(h *process.Handle) error {
	if s.state != Idle {
		return ErrAlreadyRunning
	}
	if h == nil {
		return errors.New("adopt: nil handle")
	}
	s.Display()
	s.handle = h
	s.attached = false
	s.state = Running
	return nil
}

func (s *Supervisor) restoreEnv() {
	if !s.guard.Active() {
		return
	}
	if err := s.guard.Deactivate(); err != nil {
		s.logger.Warn("failed to restore DISPLAY", xlog.Error(err))
	}
}
