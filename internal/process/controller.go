// Package process launches and terminates the display server binary.
//
// The controller never waits for the server to become ready; readiness is
// decided by the caller from the display's lock file. Launch and exit errors
// are reported out of band to an error listener, on a goroutine of the
// controller's own, and are never returned from Spawn.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
)

// DefaultBinary is the display server launched when none is configured.
const DefaultBinary = "Xvfb"

var (
	// ErrDisplayInUse is returned by Spawn when the display's lock file
	// already exists and reuse is off.
	ErrDisplayInUse = errors.New("display already in use")

	// ErrLaunch wraps errors from the OS when the binary could not be run.
	ErrLaunch = errors.New("failed to launch display server")
)

// SpawnRequest describes one launch.
type SpawnRequest struct {
	// Display is the identifier passed as the first argument, e.g. ":99".
	Display string

	// Args follow Display verbatim.
	Args []string

	// Env is the child's full environment. Nil inherits ours.
	Env []string

	// Reuse accepts an existing lock file instead of failing.
	Reuse bool

	// Silent discards the child's stderr instead of forwarding it.
	Silent bool

	// Detach starts the child in its own process group.
	Detach bool
}

// Controller spawns and kills display server processes.
type Controller struct {
	binary  string
	probe   *display.Probe
	stderr  io.Writer
	onError func(error)
}

// NewController returns a Controller. binary defaults to DefaultBinary.
// stderr receives the child's diagnostics; nil discards them.
// onError, if set, is called from a controller goroutine with launch errors
// and unexpected exits.
func NewController(binary string, probe *display.Probe, stderr io.Writer, onError func(error)) *Controller {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Controller{
		binary:  binary,
		probe:   probe,
		stderr:  stderr,
		onError: onError,
	}
}

// Binary returns the program the controller launches.
func (c *Controller) Binary() string {
	return c.binary
}

// Spawn launches the server for req.Display.
//
// If the display's lock file already exists, Spawn fails with
// ErrDisplayInUse, or with reuse on returns (nil, nil) without launching
// anything. The check and the launch are not atomic; another server may
// grab the display in between.
//
// An OS-level launch failure does not produce an error here. Spawn returns
// a Handle with Pid zero and hands the failure to the error listener.
func (c *Controller) Spawn(req SpawnRequest) (*Handle, error) {
	if c.probe.Locked(req.Display) {
		if !req.Reuse {
			return nil, fmt.Errorf("%w: %s", ErrDisplayInUse, req.Display)
		}
		return nil, nil
	}

	args := append([]string{req.Display}, req.Args...)
	cmd := exec.Command(c.binary, args...)
	cmd.Env = req.Env
	cmd.SysProcAttr = getSysProcAttr(req.Detach)
	if !req.Silent && c.stderr != nil {
		cmd.Stderr = c.stderr
	}

	if err := cmd.Start(); err != nil {
		launchErr := fmt.Errorf("%w %s: %v", ErrLaunch, c.binary, err)
		c.report(launchErr)
		return failedHandle(launchErr), nil
	}

	h := &Handle{
		pid:  cmd.Process.Pid,
		proc: cmd.Process,
		done: make(chan struct{}),
	}
	go c.reap(cmd, h)
	return h, nil
}

// reap waits for the child so it does not linger as a zombie, and reports
// exits that nobody asked for.
func (c *Controller) reap(cmd *exec.Cmd, h *Handle) {
	err := cmd.Wait()
	if err != nil {
		h.setErr(err)
	}
	close(h.done)

	if err != nil && !h.Terminated() && c.onError != nil {
		c.onError(fmt.Errorf("%s %s exited: %w", c.binary, cmd.Args[1], err))
	}
}

func (c *Controller) report(err error) {
	if c.onError == nil {
		return
	}
	go c.onError(err)
}

// Terminate sends SIGTERM to the handle's process and returns immediately.
// It does not wait for the process to exit. A nil handle or one without a
// process is a no-op. A process that has already been reaped is not
// signalled, since its PID may belong to someone else by now; Terminate
// returns os.ErrProcessDone instead.
func (c *Controller) Terminate(h *Handle) error {
	if h == nil || h.proc == nil {
		return nil
	}
	h.terminated.Store(true)
	if h.exited() {
		return os.ErrProcessDone
	}
	return terminate(h.proc)
}
