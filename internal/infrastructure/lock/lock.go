// Package lock serializes plugin manager invocations that share a registry
// with an advisory file lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrLocked is returned when another process holds the lock
var ErrLocked = errors.New("lock is held by another process")

// FileLock is an advisory lock on a file next to the registry
type FileLock struct {
	path string
	file *os.File
}

// New creates a lock on path. The file is created on first acquisition.
func New(path string) *FileLock {
	return &FileLock{path: path}
}

// Path returns the lock file location
func (l *FileLock) Path() string {
	return l.path
}

// Acquire takes the lock, retrying with exponential backoff until timeout elapses.
// A zero timeout makes a single attempt.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.file != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = timeout

	var policy backoff.BackOff = b
	if timeout <= 0 {
		policy = &backoff.StopBackOff{}
	}

	op := func() error {
		f, err := lockFile(l.path)
		if err != nil {
			if errors.Is(err, ErrLocked) {
				return err
			}
			return backoff.Permanent(err)
		}
		l.file = f
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		if errors.Is(err, ErrLocked) {
			return fmt.Errorf("%w: %s", ErrLocked, l.path)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}

	return nil
}

// Release drops the lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	return unlockFile(f, l.path)
}
