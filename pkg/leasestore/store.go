// Package leasestore persists a single lease expiry in a marker file.
//
// The marker holds one decimal tick count (100ns units since
// 0001-01-01 UTC). A Store serializes its own reads and writes with a
// mutex; cooperation between processes relies on exclusive creation and
// on the advisory locks taken by Read and Update.
package leasestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"filelease/pkg/filelock"
)

const filePerm = 0o644

var (
	// ErrBusy is returned when another handle is reading or rewriting the
	// marker at the same moment.
	ErrBusy = errors.New("marker is locked by another handle")

	// ErrLost is returned by Update when the marker was removed or
	// replaced while it was being rewritten.
	ErrLost = errors.New("marker was removed or replaced during update")
)

// Store reads and writes the expiry recorded in one marker file.
//
// Store is safe for concurrent use.
type Store struct {
	path string
	mu   sync.Mutex
}

// New creates a store for the marker at path. No I/O is performed.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the marker path.
func (s *Store) Path() string {
	return s.path
}

// Write creates or truncates the marker and records expiry in a single
// write, whatever the marker held before. The handle is closed before
// Write returns. Acquisition goes through Create and Update instead.
func (s *Store) Write(expiry time.Time) error {
	content, err := Encode(expiry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("open marker: %w", err)
	}

	return writeAndClose(f, content)
}

// Create records expiry in a new marker. It fails with an error matching
// fs.ErrExist when the marker is already present.
func (s *Store) Create(expiry time.Time) error {
	content, err := Encode(expiry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}

	return writeAndClose(f, content)
}

func writeAndClose(f *os.File, content []byte) error {
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("write marker: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close marker: %w", err)
	}

	return nil
}

// Read returns the expiry stored in the marker.
func (s *Store) Read() (time.Time, error) {
	return s.ReadPath(s.path)
}

// ReadPath returns the expiry stored in the marker at path, which may
// differ from the store's own marker.
func (s *Store) ReadPath(path string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, fmt.Errorf("open marker: %w", err)
	}
	defer f.Close()

	lock, err := filelock.TryShared(f)
	if err != nil {
		return time.Time{}, lockError(path, err)
	}
	defer lock.Unlock()

	data, err := io.ReadAll(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("read marker: %w", err)
	}

	expiry, err := Decode(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse marker %s: %w", path, err)
	}

	return expiry, nil
}

// Update rewrites the expiry of an existing marker. The marker is opened
// without creating it and held under an exclusive advisory lock while fn
// computes the new expiry from the current one. When fn returns an error
// nothing is written and Update returns the current expiry with that error.
func (s *Store) Update(fn func(current time.Time) (time.Time, error)) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		return time.Time{}, fmt.Errorf("open marker: %w", err)
	}
	defer f.Close()

	lock, err := filelock.TryExclusive(f)
	if err != nil {
		return time.Time{}, lockError(s.path, err)
	}
	defer lock.Unlock()

	data, err := io.ReadAll(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("read marker: %w", err)
	}

	current, err := Decode(data)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse marker %s: %w", s.path, err)
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}

	content, err := Encode(next)
	if err != nil {
		return current, err
	}

	// Tick counts share a width for any realistic date, so writing before
	// truncating never exposes an empty marker.
	if _, err := f.WriteAt(content, 0); err != nil {
		return current, fmt.Errorf("write marker: %w", err)
	}

	if err := f.Truncate(int64(len(content))); err != nil {
		return current, fmt.Errorf("truncate marker: %w", err)
	}

	if err := f.Sync(); err != nil {
		return current, fmt.Errorf("sync marker: %w", err)
	}

	if err := s.verifySameFile(f); err != nil {
		return current, err
	}

	return next, nil
}

// verifySameFile checks that the path still names the handle we wrote
// through, so a concurrent Remove is not mistaken for a successful update.
func (s *Store) verifySameFile(f *os.File) error {
	handleInfo, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat marker handle: %w", err)
	}

	pathInfo, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLost, err)
	}

	if !os.SameFile(handleInfo, pathInfo) {
		return fmt.Errorf("%w: %s", ErrLost, s.path)
	}

	return nil
}

// Remove deletes the marker. A missing marker is not an error.
func (s *Store) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove marker: %w", err)
	}

	return nil
}

func lockError(path string, err error) error {
	if errors.Is(err, filelock.ErrWouldBlock) {
		return fmt.Errorf("%w: %s", ErrBusy, path)
	}

	return fmt.Errorf("lock marker: %w", err)
}
