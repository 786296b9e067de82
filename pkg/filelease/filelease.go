// Package filelease implements a time-bounded exclusive lease on a file,
// recorded in a sidecar marker next to it.
//
// The marker path is the target path with its extension replaced by
// "lock" (report.txt -> report.lock). Its content is the lease expiry.
// A missing or expired marker means the target is free to take.
//
// Typical use:
//
//	lease, err := filelease.New("/data/report.txt")
//	if err != nil {
//	    return err
//	}
//	if !lease.TryAcquire(time.Minute, true) {
//	    return errBusy
//	}
//	defer lease.Close()
//
// Contention is reported as false, never as an error. AddTime is the one
// operation that returns I/O failures, since a caller extending a lease
// needs to know when it can no longer be kept alive.
package filelease

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"filelease/pkg/leasestore"
)

var (
	// ErrInvalidTarget is returned by New for targets that cannot carry a
	// separate marker.
	ErrInvalidTarget = errors.New("invalid lease target")

	// ErrExtend wraps every failure returned by AddTime.
	ErrExtend = errors.New("extend lease")

	errStillHeld = errors.New("lease still held")
)

type state int

const (
	stateUnbound state = iota
	stateHeld
	stateReleased
)

// FileLease is a handle on the lease for one target path.
//
// FileLease is safe for concurrent use.
type FileLease struct {
	id     string
	target string
	store  *leasestore.Store

	logger       *slog.Logger
	observer     Observer
	now          func() time.Time
	closeTimeout time.Duration

	mu     sync.Mutex
	state  state
	cancel context.CancelFunc
	done   chan struct{}
}

// MarkerPath returns the marker path for target: its extension, if any,
// replaced by ext.
func MarkerPath(target, ext string) string {
	base := strings.TrimSuffix(target, filepath.Ext(target))
	return base + "." + strings.TrimPrefix(ext, ".")
}

// New creates an unbound lease handle for target. No I/O is performed.
func New(target string, opts ...Option) (*FileLease, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if target == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidTarget)
	}

	if strings.TrimPrefix(o.extension, ".") == "" {
		return nil, fmt.Errorf("%w: empty lock extension", ErrInvalidTarget)
	}

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	marker := MarkerPath(absTarget, o.extension)
	if marker == absTarget {
		return nil, fmt.Errorf("%w: %s already has the lock extension", ErrInvalidTarget, target)
	}

	return &FileLease{
		id:           uuid.NewString(),
		target:       absTarget,
		store:        leasestore.New(marker),
		logger:       o.logger,
		observer:     o.observer,
		now:          o.now,
		closeTimeout: o.closeTimeout,
	}, nil
}

// NewFromFile creates an unbound lease handle for an open file.
func NewFromFile(f *os.File, opts ...Option) (*FileLease, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: nil file", ErrInvalidTarget)
	}

	return New(f.Name(), opts...)
}

// Acquire creates a handle for target and tries to take the lease for d.
// It returns nil and false when the lease is held elsewhere or cannot be
// taken.
func Acquire(target string, d time.Duration, autoRenew bool, opts ...Option) (*FileLease, bool) {
	lease, err := New(target, opts...)
	if err != nil {
		return nil, false
	}

	if !lease.TryAcquire(d, autoRenew) {
		return nil, false
	}

	return lease, true
}

// ID returns the handle's identifier, used in log records.
func (l *FileLease) ID() string {
	return l.id
}

// Target returns the absolute path of the leased resource.
func (l *FileLease) Target() string {
	return l.target
}

// MarkerPath returns the path of the marker file.
func (l *FileLease) MarkerPath() string {
	return l.store.Path()
}

// Held reports whether this handle acquired the lease and has not been
// closed. It does not re-check the marker.
func (l *FileLease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state == stateHeld
}

// ExpiresAt returns the expiry currently recorded in the marker.
func (l *FileLease) ExpiresAt() (time.Time, error) {
	return l.store.Read()
}

// TryAcquire takes the lease until now+d. It returns false when another
// holder's lease has not expired yet, when the marker cannot be read or
// written, or when the handle is already held or closed. With autoRenew
// the lease is extended in the background every 90% of d until Close.
func (l *FileLease) TryAcquire(d time.Duration, autoRenew bool) bool {
	if d <= 0 {
		l.logger.Debug("lease duration must be positive", "lease_id", l.id, "duration", d)
		return false
	}

	interval := renewInterval(d)
	if autoRenew && interval <= 0 {
		l.logger.Debug("lease duration too short to renew", "lease_id", l.id, "duration", d)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.acquireLocked(l.now().Add(d)) {
		return false
	}

	if autoRenew {
		l.startRenewalLocked(interval)
	}

	return true
}

// TryAcquireUntil takes the lease until the absolute instant expiry. It
// never renews automatically. An expiry that is not in the future is
// rejected.
func (l *FileLease) TryAcquireUntil(expiry time.Time) bool {
	if !expiry.After(l.now()) {
		l.logger.Debug("lease expiry must be in the future", "lease_id", l.id, "expires_at", expiry)
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.acquireLocked(expiry)
}

func (l *FileLease) acquireLocked(expiry time.Time) bool {
	if l.state != stateUnbound {
		return false
	}

	outcome, err := l.claim(expiry)
	l.observer.ObserveAcquire(outcome)

	if !outcome.Acquired() {
		l.logger.Debug("lease not acquired",
			"lease_id", l.id,
			"marker", l.store.Path(),
			"outcome", string(outcome),
			"error", err,
		)
		return false
	}

	l.state = stateHeld
	l.logger.Debug("lease acquired",
		"lease_id", l.id,
		"marker", l.store.Path(),
		"outcome", string(outcome),
		"expires_at", expiry,
	)

	return true
}

// claim writes expiry into the marker if it is absent or expired. The
// exclusive create handles the absent case atomically; an existing marker
// is compared and overwritten under the store's exclusive lock.
func (l *FileLease) claim(expiry time.Time) (Outcome, error) {
	err := l.store.Create(expiry)
	if err == nil {
		return OutcomeCreated, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return OutcomeFailed, err
	}

	now := l.now()
	_, err = l.store.Update(func(current time.Time) (time.Time, error) {
		if current.After(now) {
			return current, fmt.Errorf("%w until %s", errStillHeld, current.Format(time.RFC3339))
		}
		return expiry, nil
	})

	switch {
	case err == nil:
		return OutcomeReclaimed, nil
	case errors.Is(err, errStillHeld), errors.Is(err, leasestore.ErrBusy):
		return OutcomeContended, err
	default:
		return OutcomeFailed, err
	}
}

// AddTime extends the recorded expiry by delta. Failures are returned
// wrapped in ErrExtend.
func (l *FileLease) AddTime(delta time.Duration) error {
	return l.extend(delta, false)
}

func (l *FileLease) extend(delta time.Duration, renewal bool) error {
	expiry, err := l.store.Update(func(current time.Time) (time.Time, error) {
		return current.Add(delta), nil
	})
	l.observer.ObserveExtend(renewal, err)

	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtend, err)
	}

	l.logger.Debug("lease extended",
		"lease_id", l.id,
		"marker", l.store.Path(),
		"expires_at", expiry,
		"renewal", renewal,
	)

	return nil
}

// Close stops renewal and removes the marker if this handle acquired it.
// Close is idempotent and safe to call on a nil handle; a marker that is
// already gone is not an error.
func (l *FileLease) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	if l.state == stateReleased {
		l.mu.Unlock()
		return nil
	}

	held := l.state == stateHeld
	cancel, done := l.cancel, l.done
	l.state = stateReleased
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		l.waitRenewal(done)
	}

	if !held {
		return nil
	}

	err := l.store.Remove()
	l.observer.ObserveRelease(err)

	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}

	l.logger.Debug("lease released", "lease_id", l.id, "marker", l.store.Path())

	return nil
}
