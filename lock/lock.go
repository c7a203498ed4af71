// Package lock provides the cross-process advisory lock coordinating
// read-modify-write sequences over one database instance.
//
// Coordination happens through flock(2) on indicator files kept in a
// dedicated directory, separate from the data being protected. Locking is
// cooperative: it only excludes other holders using the same indicator
// file and does not prevent out-of-band access.
//
// Locking is disabled by default and enabled with EVALDB_USE_LOCKING;
// EVALDB_LOCK_DIR overrides the indicator-file directory.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Environment variables consumed by the coordinator.
const (
	// EnvUseLocking enables locking when set to "1" or "true".
	EnvUseLocking = "EVALDB_USE_LOCKING"

	// EnvLockDir overrides the indicator-file directory.
	// Default: ~/.evaldb/.lock/
	EnvLockDir = "EVALDB_LOCK_DIR"
)

// ErrTimeout is returned when lock acquisition exceeds the configured
// deadline. No partial lock state remains; the caller may retry.
var ErrTimeout = errors.New("lock: acquisition timed out")

// DefaultTimeout bounds how long Acquire waits before failing.
const DefaultTimeout = 30 * time.Second

// pollInterval is how often a blocked Acquire re-attempts the flock.
const pollInterval = 50 * time.Millisecond

// Lock is a re-entrant, advisory, cross-process mutual exclusion over one
// database instance.
type Lock interface {
	// Acquire blocks until the lock is held, the context is cancelled or
	// the configured timeout elapses (ErrTimeout). Re-entrant acquisition
	// by the same Lock value increments a hold count without blocking.
	Acquire(ctx context.Context) error

	// Release decrements the hold count, dropping the exclusive claim when
	// it reaches zero. Releasing an unheld lock is an error so a dropped
	// token never goes unnoticed.
	Release() error

	// IsLocked reports whether this holder currently holds the lock.
	IsLocked() bool
}

// Enabled reports whether locking is turned on via EnvUseLocking.
func Enabled() bool {
	switch os.Getenv(EnvUseLocking) {
	case "1", "true", "TRUE", "True":
		return true
	}
	return false
}

// Dir returns the indicator-file directory.
func Dir() string {
	if dir := os.Getenv(EnvLockDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to a shared location rather than failing; the lock
		// file itself is created lazily on first acquire.
		return filepath.Join(os.TempDir(), ".evaldb", ".lock")
	}
	return filepath.Join(home, ".evaldb", ".lock")
}

// Option configures a FileLock.
type Option func(*FileLock)

// WithTimeout sets the acquisition deadline. Zero or negative means
// DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *FileLock) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// FileLock implements Lock over a single indicator file.
type FileLock struct {
	path    string
	timeout time.Duration

	mu    sync.Mutex
	file  *os.File
	holds int
}

// New creates a lock over the given indicator file path.
func New(path string, opts ...Option) *FileLock {
	l := &FileLock{path: path, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ForDatabase returns the lock guarding the database instance identified by
// name (typically the resolved backend descriptor). When locking is
// disabled a no-op lock is returned: acquire and release never block and
// never fail, and no serialization is provided.
func ForDatabase(name string, opts ...Option) Lock {
	if !Enabled() {
		return nopLock{}
	}
	sum := sha256.Sum256([]byte(name))
	file := hex.EncodeToString(sum[:8]) + ".lock"
	return New(filepath.Join(Dir(), file), opts...)
}

// Acquire implements Lock.
func (l *FileLock) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holds > 0 {
		l.holds++
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("lock: creating lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lock: opening lock file %s: %w", l.path, err)
	}

	deadline := time.Now().Add(l.timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			l.file = f
			l.holds = 1
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			_ = f.Close()
			return fmt.Errorf("lock: flock %s: %w", l.path, err)
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return fmt.Errorf("%w after %s (%s)", ErrTimeout, l.timeout, l.path)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release implements Lock.
func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holds == 0 {
		return errors.New("lock: release of unheld lock")
	}
	l.holds--
	if l.holds > 0 {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("lock: unlock %s: %w", l.path, err)
	}
	return closeErr
}

// IsLocked implements Lock.
func (l *FileLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds > 0
}

// nopLock is the disabled coordinator: every operation succeeds
// immediately. Callers relying on atomicity must self-coordinate.
type nopLock struct{}

func (nopLock) Acquire(context.Context) error { return nil }
func (nopLock) Release() error                { return nil }
func (nopLock) IsLocked() bool                { return false }
