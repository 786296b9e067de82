package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"filelease/pkg/filelease"
)

// timeValue is an RFC 3339 instant flag. The zero value means unset.
type timeValue struct {
	t *time.Time
}

var _ pflag.Value = timeValue{}

func newTimeValue(p *time.Time) timeValue {
	return timeValue{t: p}
}

func (v timeValue) String() string {
	if v.t == nil || v.t.IsZero() {
		return ""
	}
	return v.t.Format(time.RFC3339)
}

func (v timeValue) Set(s string) error {
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid time %q (want RFC 3339): %w", s, err)
	}
	*v.t = parsed
	return nil
}

func (timeValue) Type() string {
	return "time"
}

// markerState is what a marker says about its target at one instant.
type markerState struct {
	Marker    string
	Exists    bool
	ExpiresAt time.Time
	Err       error
}

func inspectLease(lease *filelease.FileLease) markerState {
	state := markerState{Marker: lease.MarkerPath()}

	expiresAt, err := lease.ExpiresAt()
	switch {
	case err == nil:
		state.Exists = true
		state.ExpiresAt = expiresAt
	case errors.Is(err, fs.ErrNotExist):
	default:
		state.Exists = true
		state.Err = err
	}

	return state
}

func (s markerState) describe(now time.Time) string {
	switch {
	case !s.Exists:
		return "unlocked"
	case s.Err != nil:
		return fmt.Sprintf("unreadable: %v", s.Err)
	case s.ExpiresAt.After(now):
		return fmt.Sprintf("held until %s (in %s)", formatTime(s.ExpiresAt), s.ExpiresAt.Sub(now).Round(time.Second))
	default:
		return fmt.Sprintf("expired at %s (%s ago)", formatTime(s.ExpiresAt), now.Sub(s.ExpiresAt).Round(time.Second))
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func printCommandHeader(command, target, marker string) {
	fmt.Printf("Command: %s\n", command)
	fmt.Printf("Target:  %s\n", target)
	fmt.Printf("Marker:  %s\n", marker)
}

type progressReporter struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func startProgress(label string) *progressReporter {
	p := &progressReporter{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	startTime := time.Now()
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		defer close(p.doneCh)
		for {
			select {
			case <-ticker.C:
				elapsed := time.Since(startTime).Round(time.Second)
				fmt.Fprintf(os.Stderr, "%s... %s elapsed\n", label, elapsed)
			case <-p.stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	return p
}

func (p *progressReporter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		<-p.doneCh
	})
}
