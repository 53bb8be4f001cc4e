//go:build unix

package process

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// getSysProcAttr returns platform-specific process attributes.
// Detached servers get their own process group so terminal signals aimed at
// the launching CLI do not reach them.
func getSysProcAttr(detach bool) *syscall.SysProcAttr {
	if !detach {
		return nil
	}
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// terminate signals through the os.Process, which holds a pidfd on Linux,
// so a recycled PID is never hit.
func terminate(proc *os.Process) error {
	return proc.Signal(unix.SIGTERM)
}

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}
