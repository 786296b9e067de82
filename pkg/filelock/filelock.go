// Package filelock provides non-blocking advisory locks on already-open
// files. A lock lives only as long as the caller holds it; the file handle
// stays owned by the caller and is never closed here.
package filelock

import (
	"errors"
	"os"
)

// ErrWouldBlock is returned when another handle already holds a
// conflicting lock on the file.
var ErrWouldBlock = errors.New("file lock would block")

// Lock represents an acquired advisory lock on an open file.
type Lock struct {
	file *os.File
}

// TryExclusive obtains an exclusive lock on f without waiting.
func TryExclusive(f *os.File) (*Lock, error) {
	if err := lockFile(f, true); err != nil {
		return nil, err
	}

	return &Lock{file: f}, nil
}

// TryShared obtains a shared lock on f without waiting. Shared locks
// coexist with each other but not with an exclusive lock.
func TryShared(f *os.File) (*Lock, error) {
	if err := lockFile(f, false); err != nil {
		return nil, err
	}

	return &Lock{file: f}, nil
}

// Unlock releases the lock. It is safe to call Unlock on a nil Lock or
// more than once.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}

	err := unlockFile(l.file)
	l.file = nil

	return err
}
