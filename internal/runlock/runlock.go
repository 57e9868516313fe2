// Package runlock keeps two state-changing docmigrate runs from working on
// the same database at once.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
)

// ErrLocked reports that another run holds the lock.
var ErrLocked = errors.NewStd("another docmigrate run holds the lock")

// Lock is a held advisory file lock.
type Lock struct {
	file *flock.Flock
}

// Acquire takes the lock at path without waiting. The parent directory is
// created when missing.
func Acquire(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, lockError(fmt.Errorf("create lock directory: %w", err), path, errors.CategoryFileIO)
		}
	}

	file := flock.New(path)
	locked, err := file.TryLock()
	if err != nil {
		return nil, lockError(fmt.Errorf("acquire lock: %w", err), path, errors.CategoryFileIO)
	}
	if !locked {
		return nil, lockError(ErrLocked, path, errors.CategoryConflict)
	}

	logger.Global().Module("runlock").Debug("run lock acquired", logger.String("path", path))
	return &Lock{file: file}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.file.Path()
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || !l.file.Locked() {
		return nil
	}
	if err := l.file.Unlock(); err != nil {
		return lockError(fmt.Errorf("release lock: %w", err), l.file.Path(), errors.CategoryFileIO)
	}
	return nil
}

func lockError(err error, path string, category errors.ErrorCategory) error {
	return errors.New(err).
		Component("runlock").
		Category(category).
		Context("path", path).
		Build()
}
