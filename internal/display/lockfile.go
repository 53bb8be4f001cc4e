// Package display resolves X display identifiers and answers questions
// about the lock files an X server keeps while it owns a display.
//
// The lock file is the only signal this module trusts: a display is
// considered up while <dir>/.X<n>-lock exists and down once it is gone.
// The file is created and removed by the server binary, never by us.
package display

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultLockDir is where X servers write their lock files. Xvfb ignores
// TMPDIR, so this is a fixed path rather than os.TempDir().
const DefaultLockDir = "/tmp"

// ErrInvalidDisplay is returned when an identifier is not of the form ":<n>".
var ErrInvalidDisplay = errors.New("invalid display identifier")

// Probe maps display identifiers to lock-file paths and checks for them.
type Probe struct {
	dir string
}

// NewProbe returns a Probe rooted at dir. An empty dir means DefaultLockDir.
func NewProbe(dir string) *Probe {
	if dir == "" {
		dir = DefaultLockDir
	}
	return &Probe{dir: dir}
}

// Dir returns the directory lock files are looked up in.
func (p *Probe) Dir() string {
	return p.dir
}

// PathFor returns the lock-file path for a display identifier such as ":99".
// A bare number ("99") is accepted as well.
func (p *Probe) PathFor(display string) string {
	return p.PathForNumber(strings.TrimPrefix(display, ":"))
}

// PathForNumber returns the lock-file path for the numeric part of a display.
func (p *Probe) PathForNumber(num string) string {
	return filepath.Join(p.dir, ".X"+num+"-lock")
}

// Exists reports whether path exists right now. Results are never cached;
// the server creates and removes the file behind our back.
func (p *Probe) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Locked reports whether the lock file for display exists.
func (p *Probe) Locked(display string) bool {
	return p.Exists(p.PathFor(display))
}

// Owner returns the PID the X server recorded in the display's lock file.
// Xvfb writes it as a right-aligned decimal followed by a newline.
func (p *Probe) Owner(display string) (int, error) {
	data, err := os.ReadFile(p.PathFor(display))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed lock file for %s: %w", display, err)
	}
	return pid, nil
}

// Scan returns the display identifiers of every lock file in the probe's
// directory, in directory order.
func (p *Probe) Scan() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, ".X*-lock"))
	if err != nil {
		return nil, err
	}

	displays := make([]string, 0, len(matches))
	for _, m := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), ".X"), "-lock")
		if _, err := strconv.Atoi(num); err != nil {
			continue
		}
		displays = append(displays, ":"+num)
	}
	return displays, nil
}

// Parse returns the display number of an identifier of the form ":<n>".
func Parse(display string) (int, error) {
	num, ok := strings.CutPrefix(display, ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDisplay, display)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDisplay, display)
	}
	return n, nil
}

// Format returns the identifier for display number n.
func Format(n int) string {
	return ":" + strconv.Itoa(n)
}
