package session

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	"github.com/mvp-joe/xvfb-supervisor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Registry:
// - Open creates the state and log directories
// - Add assigns ID and start time, replaces a session on the same display
// - Get / Remove report ErrNotFound for unknown displays
// - List orders by start time and survives reopening
// - Concurrent Adds from several registries on one directory are all kept
// - Prune drops sessions rejected by the predicate
// - Inspect merges sessions with live lock files
// - Owned trusts the lock owner, else the recorded PID's program name

func TestOpen_CreatesDirectories(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "state")
	r, err := Open(dir)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.Equal(t, dir, r.Dir())
	assert.Equal(t, filepath.Join(dir, "logs", "Xvfb:99.log"), r.LogPath(":99"))
}

func TestRegistry_AddGetRemove(t *testing.T) {
	t.Parallel()

	r, err := Open(t.TempDir())
	require.NoError(t, err)

	added, err := r.Add(Session{Display: ":99", PID: 1234, Binary: "Xvfb"})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.StartedAt.IsZero())

	got, err := r.Get(":99")
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, 1234, got.PID)

	replaced, err := r.Add(Session{Display: ":99", PID: 5678})
	require.NoError(t, err)
	all, err := r.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, replaced.ID, all[0].ID)

	require.NoError(t, r.Remove(":99"))
	_, err = r.Get(":99")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.Remove(":99"), ErrNotFound)
}

func TestRegistry_ListOrderAndPersistence(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err = r.Add(Session{Display: ":101", StartedAt: base.Add(time.Minute)})
	require.NoError(t, err)
	_, err = r.Add(Session{Display: ":100", StartedAt: base})
	require.NoError(t, err)

	reopened, err := Open(dir)
	require.NoError(t, err)
	all, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, ":100", all[0].Display)
	assert.Equal(t, ":101", all[1].Display)
	assert.True(t, base.Equal(all[0].StartedAt))
}

func TestRegistry_ConcurrentAdds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r, err := Open(dir)
			if !assert.NoError(t, err) {
				return
			}
			_, err = r.Add(Session{Display: display.Format(100 + n)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	r, err := Open(dir)
	require.NoError(t, err)
	all, err := r.List()
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRegistry_Prune(t *testing.T) {
	t.Parallel()

	r, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = r.Add(Session{Display: ":99", PID: os.Getpid()})
	require.NoError(t, err)
	_, err = r.Add(Session{Display: ":100", PID: 0})
	require.NoError(t, err)

	dropped, err := r.Prune(func(s Session) bool { return Alive(s.PID) })
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, ":100", dropped[0].Display)

	all, err := r.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ":99", all[0].Display)
}

func TestRegistry_CorruptState(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sessions.yml"), []byte("sessions: {not a list"), 0644))

	_, err = r.List()
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	t.Parallel()

	lockDir := t.TempDir()
	probe := display.NewProbe(lockDir)

	// A foreign server we did not start, owned by this test process.
	testutil.WriteLock(t, lockDir, ":5", os.Getpid())
	// A recorded session whose server has died and released its lock.
	sessions := []Session{{ID: "abc", Display: ":99", PID: 0, LogFile: "/tmp/x.log"}}

	statuses, err := Inspect(probe, sessions)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, ":99", statuses[0].Display)
	assert.False(t, statuses[0].Locked)
	assert.False(t, statuses[0].Alive)
	assert.Equal(t, "abc", statuses[0].SessionID)

	assert.Equal(t, ":5", statuses[1].Display)
	assert.True(t, statuses[1].Locked)
	assert.Equal(t, os.Getpid(), statuses[1].OwnerPID)
	assert.True(t, statuses[1].Alive)
	assert.NotEmpty(t, statuses[1].Command)
	assert.False(t, statuses[1].StartedAt.IsZero())
}

func TestAlive(t *testing.T) {
	t.Parallel()

	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-1))
}

func TestOwned(t *testing.T) {
	t.Parallel()

	self, err := os.Executable()
	require.NoError(t, err)
	pid := os.Getpid()

	tests := []struct {
		name    string
		lockPID int
		session Session
		want    bool
	}{
		{"lock owned by recorded pid", pid, Session{PID: pid, Binary: "Xvfb"}, true},
		{"lock owned by another pid", 1, Session{PID: pid, Binary: self}, false},
		{"no lock, pid runs recorded binary", 0, Session{PID: pid, Binary: self}, true},
		{"no lock, pid runs something else", 0, Session{PID: pid, Binary: "/usr/bin/Xvfb"}, false},
		{"no pid", 0, Session{PID: 0, Binary: self}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lockDir := t.TempDir()
			if tt.lockPID != 0 {
				testutil.WriteLock(t, lockDir, ":7", tt.lockPID)
			}
			tt.session.Display = ":7"
			assert.Equal(t, tt.want, Owned(display.NewProbe(lockDir), tt.session))
		})
	}
}

func TestSameProgram(t *testing.T) {
	t.Parallel()

	assert.True(t, sameProgram("Xvfb", "/usr/bin/Xvfb"))
	assert.True(t, sameProgram("Xvfb", "Xvfb"))
	assert.False(t, sameProgram("sleep", "/usr/bin/Xvfb"))
	assert.False(t, sameProgram("Xvfb", ""))
	// Names are cut to 15 bytes by the kernel.
	assert.True(t, sameProgram("a-very-long-ser", "/opt/a-very-long-server-name"))
	assert.False(t, sameProgram("a-very-long", "/opt/a-very-long-server-name"))
}
