//go:build !unix

package process

import (
	"os"
	"syscall"
)

func getSysProcAttr(detach bool) *syscall.SysProcAttr {
	return nil
}

func terminate(proc *os.Process) error {
	return proc.Kill()
}

func processExists(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}
