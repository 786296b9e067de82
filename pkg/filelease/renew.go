package filelease

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"filelease/pkg/leasestore"
)

// renewInterval is 90% of the lease duration: each renewal fires before
// the expiry it extends.
func renewInterval(d time.Duration) time.Duration {
	return d / 10 * 9
}

func (l *FileLease) startRenewalLocked(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.cancel = cancel
	l.done = done

	go l.renewLoop(ctx, interval, done)
}

// renewLoop extends the lease by interval every interval until ctx is
// cancelled or the marker disappears.
func (l *FileLease) renewLoop(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Both channels may be ready at once.
		if ctx.Err() != nil {
			return
		}

		err := l.extend(interval, true)
		if err == nil {
			if failures > 0 {
				l.logger.Info("lease renewal recovered", "lease_id", l.id, "failures", failures)
				failures = 0
			}
			continue
		}

		failures++
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, leasestore.ErrLost) {
			l.logger.Warn("lease marker gone, stopping renewal",
				"lease_id", l.id,
				"marker", l.store.Path(),
				"error", err,
			)
			return
		}

		l.logger.Warn("lease renewal failed",
			"lease_id", l.id,
			"marker", l.store.Path(),
			"attempt", failures,
			"error", err,
		)
	}
}

func (l *FileLease) waitRenewal(done <-chan struct{}) {
	timer := time.NewTimer(l.closeTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		l.logger.Warn("renewal still running at close", "lease_id", l.id, "timeout", l.closeTimeout)
	}
}
