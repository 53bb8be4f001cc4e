package process

import (
	"os"
	"sync"
	"sync/atomic"
)

// Handle is a spawned (or adopted) display server process.
//
// A Handle may exist without a process: when the OS refused to launch the
// binary, Spawn still returns a Handle whose Pid is zero and whose Err is
// set, and reports the failure to the controller's error listener.
type Handle struct {
	pid  int
	proc *os.Process

	// done is closed once the process has been reaped. Nil for adopted
	// handles, which we cannot wait on.
	done       chan struct{}
	terminated atomic.Bool

	mu  sync.Mutex
	err error
}

// FromPID returns a Handle for a process this program did not start, such
// as a detached server recorded by an earlier invocation.
func FromPID(pid int) (*Handle, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}
	return &Handle{pid: pid, proc: proc}, nil
}

func failedHandle(err error) *Handle {
	h := &Handle{done: make(chan struct{}), err: err}
	close(h.done)
	return h
}

// Pid returns the process ID, or zero if the process never started.
func (h *Handle) Pid() int {
	return h.pid
}

// Process returns the underlying process, or nil if it never started.
func (h *Handle) Process() *os.Process {
	return h.proc
}

// Done returns a channel closed when the process has exited and been reaped.
// It returns nil for adopted handles.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the launch error or, after Done is closed, the exit error.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Terminated reports whether Terminate has been called on the handle.
func (h *Handle) Terminated() bool {
	return h.terminated.Load()
}

// Alive reports whether the process still exists.
func (h *Handle) Alive() bool {
	if h.proc == nil {
		return false
	}
	if h.exited() {
		return false
	}
	return processExists(h.pid)
}

// exited reports whether the reaper has collected the process.
func (h *Handle) exited() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}
