// Package testutil provides a stand-in for the Xvfb binary so lifecycle
// tests can run on machines without an X server installed.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Behavior selects how the fake server treats its lock file.
type Behavior int

const (
	// Normal writes the lock file on start and removes it on SIGTERM.
	Normal Behavior = iota

	// NeverReady runs but never writes a lock file.
	NeverReady

	// Stubborn writes the lock file and leaves it behind on SIGTERM.
	Stubborn

	// Crash prints to stderr and exits 3 without writing a lock file.
	Crash
)

// FakeXvfb writes an executable shell script that mimics Xvfb's lock-file
// protocol in lockDir and returns its path. The script prints one line to
// stderr on start so forwarding can be asserted.
func FakeXvfb(t testing.TB, lockDir string, behavior Behavior) string {
	t.Helper()

	var body string
	switch behavior {
	case Normal:
		body = `trap 'rm -f "$lock"; exit 0' TERM INT
printf '%10d\n' $$ > "$lock"`
	case NeverReady:
		body = `trap 'exit 0' TERM INT`
	case Stubborn:
		body = `trap 'exit 0' TERM INT
printf '%10d\n' $$ > "$lock"`
	case Crash:
		body = `exit 3`
	}

	script := fmt.Sprintf(`#!/bin/sh
n="${1#:}"
lock=%q/.X"$n"-lock
echo "fake-xvfb display $1 args: $*" >&2
%s
while :; do
  sleep 1 &
  wait $!
done
`, lockDir, body)

	path := filepath.Join(t.TempDir(), "Xvfb")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

// WriteLock creates a lock file for display in lockDir, as a running server
// would.
func WriteLock(t testing.TB, lockDir, display string, pid int) string {
	t.Helper()
	path := filepath.Join(lockDir, ".X"+display[1:]+"-lock")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("%10d\n", pid)), 0644))
	return path
}
