package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnabled(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"no", false},
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"True", true},
	}
	for _, tt := range tests {
		t.Setenv(EnvUseLocking, tt.value)
		assert.Equal(t, tt.want, Enabled(), "EVALDB_USE_LOCKING=%q", tt.value)
	}
}

func TestDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvLockDir, dir)
	assert.Equal(t, dir, Dir())
}

func TestForDatabaseDisabled(t *testing.T) {
	t.Setenv(EnvUseLocking, "")
	l := ForDatabase("json_files:/data/eval")

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	assert.False(t, l.IsLocked(), "no-op lock reports held")
	require.NoError(t, l.Release())
	// The no-op coordinator never flags imbalance either.
	require.NoError(t, l.Release())
}

func TestForDatabaseEnabled(t *testing.T) {
	t.Setenv(EnvUseLocking, "1")
	t.Setenv(EnvLockDir, t.TempDir())

	l := ForDatabase("json_files:/data/eval")
	_, ok := l.(*FileLock)
	require.True(t, ok, "enabled coordinator is not file-backed")

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.IsLocked())
	require.NoError(t, l.Release())
	assert.False(t, l.IsLocked())
}

func TestFileLockReentrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	l := New(path)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	assert.True(t, l.IsLocked())

	require.NoError(t, l.Release())
	assert.True(t, l.IsLocked(), "outer hold dropped with inner release")
	require.NoError(t, l.Release())
	assert.False(t, l.IsLocked())
}

func TestReleaseUnheld(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "test.lock"))
	assert.Error(t, l.Release())
}

func TestContention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	ctx := context.Background()

	holder := New(path)
	require.NoError(t, holder.Acquire(ctx))
	defer holder.Release()

	// A second holder on the same indicator file times out.
	waiter := New(path, WithTimeout(200*time.Millisecond))
	err := waiter.Acquire(ctx)
	require.ErrorIs(t, err, ErrTimeout)
	assert.False(t, waiter.IsLocked())
}

func TestAcquireCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")

	holder := New(path)
	require.NoError(t, holder.Acquire(context.Background()))
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	waiter := New(path, WithTimeout(time.Minute))
	err := waiter.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.lock")
	ctx := context.Background()

	first := New(path)
	require.NoError(t, first.Acquire(ctx))
	require.NoError(t, first.Release())

	second := New(path, WithTimeout(time.Second))
	require.NoError(t, second.Acquire(ctx))
	require.NoError(t, second.Release())
}
