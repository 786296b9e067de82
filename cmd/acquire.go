package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"filelease/pkg/filelease"
)

var (
	acquireFor   time.Duration
	acquireUntil time.Time
)

func buildAcquireCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire [target]",
		Short: "Take a lease on a file and leave it in place",
		Long: `Takes the lease on the target and exits. The marker stays behind until the
lease expires or "filelease release" removes it, so other processes see the
target as held in the meantime.

The command fails immediately if someone else holds a valid lease; it never
waits. Use "filelease run --wait" to wait for a lease.

Examples:
  filelease acquire ./report.txt                                # one hour
  filelease acquire --for 10m ./report.txt
  filelease acquire --until 2030-01-01T00:00:00Z ./report.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runAcquire,
	}

	acquireUntil = time.Time{}

	cmd.Flags().DurationVar(&acquireFor, "for", time.Hour, "Lease duration")
	cmd.Flags().Var(newTimeValue(&acquireUntil), "until", "Absolute lease expiry (RFC 3339)")
	cmd.MarkFlagsMutuallyExclusive("for", "until")

	return cmd
}

func runAcquire(_ *cobra.Command, args []string) error {
	if acquireUntil.IsZero() && acquireFor <= 0 {
		return errors.New("--for must be positive")
	}

	lease, err := filelease.New(args[0], leaseOptions()...)
	if err != nil {
		return err
	}

	// The handle is deliberately not closed: the marker has to outlive
	// this process.
	var acquired bool
	if acquireUntil.IsZero() {
		acquired = lease.TryAcquire(acquireFor, false)
	} else {
		acquired = lease.TryAcquireUntil(acquireUntil)
	}

	if !acquired {
		state := inspectLease(lease)
		return fmt.Errorf("lease on %s not acquired: %s", lease.Target(), state.describe(time.Now()))
	}

	expiresAt, err := lease.ExpiresAt()
	if err != nil {
		return fmt.Errorf("read back lease: %w", err)
	}

	printCommandHeader("ACQUIRE", lease.Target(), lease.MarkerPath())
	fmt.Printf("Expires: %s\n", formatTime(expiresAt))

	return nil
}
