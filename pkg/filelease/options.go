package filelease

import (
	"log/slog"
	"time"
)

const (
	// DefaultExtension replaces the target's extension to form the marker
	// path.
	DefaultExtension = "lock"

	// DefaultCloseTimeout bounds how long Close waits for an in-flight
	// renewal to finish.
	DefaultCloseTimeout = 5 * time.Second
)

type options struct {
	logger       *slog.Logger
	observer     Observer
	extension    string
	now          func() time.Time
	closeTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:       slog.Default(),
		observer:     nopObserver{},
		extension:    DefaultExtension,
		now:          time.Now,
		closeTimeout: DefaultCloseTimeout,
	}
}

// Option configures a FileLease.
type Option func(*options)

// WithLogger sets the logger used for acquisition failures and renewal
// problems. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers an observer for lease events.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithExtension overrides the marker extension ("lock" by default).
func WithExtension(ext string) Option {
	return func(o *options) {
		o.extension = ext
	}
}

// WithClock replaces time.Now for expiry calculations.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithCloseTimeout bounds how long Close waits for the renewal goroutine.
func WithCloseTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.closeTimeout = d
		}
	}
}
