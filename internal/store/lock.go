package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// WriteLockFile is the name of the lock file held by the live writer.
const WriteLockFile = "write.lock"

// WriteLock is the cross-process exclusive lock that guards an index root
// against a second writer. A WriteLock for an in-memory store is a no-op.
type WriteLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

func newWriteLock(root string) *WriteLock {
	if root == "" {
		return &WriteLock{}
	}
	path := filepath.Join(root, WriteLockFile)
	return &WriteLock{
		path:  path,
		flock: flock.New(path),
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if another holder has it.
func (l *WriteLock) TryLock() (bool, error) {
	if l.flock == nil {
		l.locked = true
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if acquired {
		l.locked = true
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *WriteLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	if l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release write lock: %w", err)
	}
	return nil
}

// Path returns the lock file path, empty for an in-memory store.
func (l *WriteLock) Path() string {
	return l.path
}

// Locked reports whether this WriteLock currently holds the lock.
func (l *WriteLock) Locked() bool {
	return l.locked
}
