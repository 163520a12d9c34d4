// Package applock guards the data directory with a file lock so only one
// podbay process mutates the stores at a time.
package applock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Lock is a held single-instance lock. Release it with Unlock.
type Lock struct {
	flk  *flock.Flock
	path string
}

// Acquire takes the lock at path without blocking. A second process asking
// for the same lock gets an error naming the lock file.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	flk := flock.New(path)
	ok, err := flk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("another podbay process holds %s", path)
	}
	return &Lock{flk: flk, path: path}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Unlock releases the lock. Safe to call on a nil lock.
func (l *Lock) Unlock() error {
	if l == nil || l.flk == nil {
		return nil
	}
	return l.flk.Unlock()
}
