//go:build !unix

package lock

import (
	"errors"
	"io/fs"
	"os"
)

// Without flock the lock is the existence of the file itself.
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return f, nil
}

func unlockFile(f *os.File, path string) error {
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
