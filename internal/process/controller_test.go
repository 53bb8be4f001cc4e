package process

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
	"github.com/mvp-joe/xvfb-supervisor/internal/poll"
	"github.com/mvp-joe/xvfb-supervisor/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Controller:
// - Spawn refuses a locked display without reuse and launches nothing
// - Spawn attaches (nil handle, nil error) to a locked display with reuse
// - Spawn passes the display as first argument and forwards stderr
// - Silent discards stderr
// - Launch failures go to the listener, not the return value
// - Terminate signals without waiting and tolerates nil/failed handles
// - Terminate never signals a process that has already been reaped
// - Unexpected exits are reported; terminated exits are not

type errSink struct {
	ch chan error
}

func newErrSink() *errSink {
	return &errSink{ch: make(chan error, 4)}
}

func (s *errSink) listen(err error) {
	s.ch <- err
}

func waitLock(t *testing.T, probe *display.Probe, d string, present bool) {
	t.Helper()
	err := poll.WaitUntil(func() bool { return probe.Locked(d) == present }, 2*time.Second)
	require.NoError(t, err, "lock file for %s present=%v", d, present)
}

func TestSpawn_CollisionWithoutReuse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	marker := testutil.WriteLock(t, dir, ":99", 1)
	c := NewController("/nonexistent/binary", display.NewProbe(dir), nil, nil)

	h, err := c.Spawn(SpawnRequest{Display: ":99"})

	require.ErrorIs(t, err, ErrDisplayInUse)
	assert.Nil(t, h)
	_, statErr := os.Stat(marker)
	assert.NoError(t, statErr)
}

func TestSpawn_AttachWithReuse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteLock(t, dir, ":99", 1)
	sink := newErrSink()
	c := NewController("/nonexistent/binary", display.NewProbe(dir), nil, sink.listen)

	h, err := c.Spawn(SpawnRequest{Display: ":99", Reuse: true})

	require.NoError(t, err)
	assert.Nil(t, h)
	select {
	case err := <-sink.ch:
		t.Fatalf("no launch expected, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSpawn_LaunchesAndForwardsStderr(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	probe := display.NewProbe(dir)
	stderr := &testutil.Buffer{}
	c := NewController(testutil.FakeXvfb(t, dir, testutil.Normal), probe, stderr, nil)

	h, err := c.Spawn(SpawnRequest{Display: ":123", Args: []string{"-screen", "0", "800x600x24"}})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NotZero(t, h.Pid())
	assert.True(t, h.Alive())

	waitLock(t, probe, ":123", true)
	owner, err := probe.Owner(":123")
	require.NoError(t, err)
	assert.Equal(t, h.Pid(), owner)

	require.NoError(t, c.Terminate(h))
	assert.True(t, h.Terminated())
	waitLock(t, probe, ":123", false)

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process was not reaped")
	}
	assert.Contains(t, stderr.String(), "fake-xvfb display :123 args: :123 -screen 0 800x600x24")
}

func TestSpawn_Silent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	probe := display.NewProbe(dir)
	stderr := &testutil.Buffer{}
	c := NewController(testutil.FakeXvfb(t, dir, testutil.Normal), probe, stderr, nil)

	h, err := c.Spawn(SpawnRequest{Display: ":124", Silent: true})
	require.NoError(t, err)
	waitLock(t, probe, ":124", true)

	require.NoError(t, c.Terminate(h))
	<-h.Done()
	assert.Empty(t, stderr.String())
}

func TestSpawn_LaunchFailureGoesToListener(t *testing.T) {
	t.Parallel()

	sink := newErrSink()
	c := NewController("/nonexistent/binary/Xvfb", display.NewProbe(t.TempDir()), nil, sink.listen)

	h, err := c.Spawn(SpawnRequest{Display: ":125"})

	require.NoError(t, err, "launch errors are reported out of band")
	require.NotNil(t, h)
	assert.Zero(t, h.Pid())
	assert.False(t, h.Alive())
	assert.ErrorIs(t, h.Err(), ErrLaunch)
	assert.NoError(t, c.Terminate(h))

	select {
	case got := <-sink.ch:
		assert.ErrorIs(t, got, ErrLaunch)
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestSpawn_UnexpectedExitReported(t *testing.T) {
	t.Parallel()

	sink := newErrSink()
	c := NewController(testutil.FakeXvfb(t, t.TempDir(), testutil.Crash), display.NewProbe(t.TempDir()), nil, sink.listen)

	h, err := c.Spawn(SpawnRequest{Display: ":126"})
	require.NoError(t, err)
	<-h.Done()

	select {
	case got := <-sink.ch:
		assert.Contains(t, got.Error(), "exited")
		var exitErr interface{ ExitCode() int }
		require.True(t, errors.As(got, &exitErr))
		assert.Equal(t, 3, exitErr.ExitCode())
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestTerminate_NilHandle(t *testing.T) {
	t.Parallel()

	c := NewController("", display.NewProbe(""), nil, nil)
	assert.Equal(t, DefaultBinary, c.Binary())
	assert.NoError(t, c.Terminate(nil))
}

func TestTerminate_AfterReap(t *testing.T) {
	t.Parallel()

	c := NewController(testutil.FakeXvfb(t, t.TempDir(), testutil.Crash), display.NewProbe(t.TempDir()), nil, nil)

	h, err := c.Spawn(SpawnRequest{Display: ":127"})
	require.NoError(t, err)
	require.NotZero(t, h.Pid())

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process was not reaped")
	}

	// The PID is free for reuse once reaped, so nothing may be sent to it.
	err = c.Terminate(h)
	assert.ErrorIs(t, err, os.ErrProcessDone)
	assert.True(t, h.Terminated())
	assert.False(t, h.Alive())
}

func TestFromPID(t *testing.T) {
	t.Parallel()

	h, err := FromPID(os.Getpid())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), h.Pid())
	assert.True(t, h.Alive())
	assert.Nil(t, h.Done())
}
