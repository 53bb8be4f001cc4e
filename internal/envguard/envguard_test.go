package envguard

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Guard:
// - Round trip restores a previously set value
// - Round trip restores the unset state
// - Activate twice without Deactivate fails (single slot)
// - Deactivate without Activate fails
// - OSEnv round trip against the real environment
// - Environ replaces an existing DISPLAY entry

func TestGuard_RestoresSetValue(t *testing.T) {
	t.Parallel()

	env := NewMapEnv(map[string]string{DisplayVar: ":0"})
	g := New(env)

	require.NoError(t, g.Activate(":99"))
	v, ok := env.Lookup(DisplayVar)
	assert.True(t, ok)
	assert.Equal(t, ":99", v)
	assert.True(t, g.Active())

	require.NoError(t, g.Deactivate())
	v, ok = env.Lookup(DisplayVar)
	assert.True(t, ok)
	assert.Equal(t, ":0", v)
	assert.False(t, g.Active())
}

func TestGuard_RestoresUnset(t *testing.T) {
	t.Parallel()

	env := NewMapEnv(nil)
	g := New(env)

	require.NoError(t, g.Activate(":99"))
	require.NoError(t, g.Deactivate())

	_, ok := env.Lookup(DisplayVar)
	assert.False(t, ok, "DISPLAY must be unset again, not set to empty")
}

func TestGuard_RestoresEmptyButSet(t *testing.T) {
	t.Parallel()

	env := NewMapEnv(map[string]string{DisplayVar: ""})
	g := New(env)

	require.NoError(t, g.Activate(":1"))
	require.NoError(t, g.Deactivate())

	v, ok := env.Lookup(DisplayVar)
	assert.True(t, ok)
	assert.Empty(t, v)
}

func TestGuard_SingleSlot(t *testing.T) {
	t.Parallel()

	g := New(NewMapEnv(nil))

	require.NoError(t, g.Activate(":99"))
	assert.ErrorIs(t, g.Activate(":100"), ErrAlreadyActive)

	require.NoError(t, g.Deactivate())
	assert.ErrorIs(t, g.Deactivate(), ErrNotActive)
}

func TestGuard_OSEnv(t *testing.T) {
	// Note: Cannot use t.Parallel() with t.Setenv()
	t.Setenv(DisplayVar, ":5")

	g := New(nil)
	require.NoError(t, g.Activate(":77"))
	assert.Equal(t, ":77", os.Getenv(DisplayVar))

	require.NoError(t, g.Deactivate())
	assert.Equal(t, ":5", os.Getenv(DisplayVar))
}

func TestEnviron(t *testing.T) {
	t.Parallel()

	base := []string{"PATH=/bin", "DISPLAY=:0", "HOME=/root"}

	got := Environ(base, ":99")

	assert.Equal(t, []string{"PATH=/bin", "HOME=/root", "DISPLAY=:99"}, got)
	assert.Equal(t, "DISPLAY=:0", base[1], "base must not be modified")
}
