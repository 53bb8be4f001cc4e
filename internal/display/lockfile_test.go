package display

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Probe:
// - PathFor is a pure function of the numeric suffix
// - PathFor accepts identifiers with and without the leading colon
// - Exists reflects files created and removed after the probe was built
// - Owner parses the PID Xvfb writes into the lock file
// - Scan lists displays for every well-formed lock file

// touchLock creates the lock file for display in dir with the given content.
func touchLock(t *testing.T, dir, display, content string) string {
	t.Helper()
	path := NewProbe(dir).PathFor(display)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProbe_PathFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dir     string
		display string
		want    string
	}{
		{name: "default dir", dir: "", display: ":99", want: "/tmp/.X99-lock"},
		{name: "custom dir", dir: "/var/run/x", display: ":42", want: "/var/run/x/.X42-lock"},
		{name: "bare number", dir: "", display: "7", want: "/tmp/.X7-lock"},
		{name: "display zero", dir: "", display: ":0", want: "/tmp/.X0-lock"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbe(tt.dir)
			assert.Equal(t, tt.want, p.PathFor(tt.display))
			assert.Equal(t, p.PathFor(tt.display), p.PathFor(tt.display), "path must be deterministic")
		})
	}
}

func TestProbe_ExistsTracksExternalChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewProbe(dir)
	path := p.PathFor(":123")

	assert.False(t, p.Exists(path))

	touchLock(t, dir, ":123", "")
	assert.True(t, p.Exists(path))
	assert.True(t, p.Locked(":123"))

	require.NoError(t, os.Remove(path))
	assert.False(t, p.Exists(path), "probe must not cache results")
}

func TestProbe_Owner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := NewProbe(dir)

	touchLock(t, dir, ":99", "      4242\n")
	pid, err := p.Owner(":99")
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)

	touchLock(t, dir, ":100", "garbage")
	_, err = p.Owner(":100")
	assert.Error(t, err)

	_, err = p.Owner(":101")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProbe_Scan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touchLock(t, dir, ":99", "")
	touchLock(t, dir, ":105", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".Xfoo-lock"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated"), nil, 0644))

	displays, err := NewProbe(dir).Scan()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{":99", ":105"}, displays)
}

func TestParse(t *testing.T) {
	t.Parallel()

	n, err := Parse(":42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	for _, bad := range []string{"42", ":", ":abc", ":-1", ""} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidDisplay, "input %q", bad)
	}

	assert.Equal(t, ":7", Format(7))
}
