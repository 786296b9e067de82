package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"filelease/pkg/filelease"
)

var extendBy time.Duration

func buildExtendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extend [target]",
		Short: "Add time to an existing lease",
		Long: `Adds the given duration to the expiry recorded in the target's marker.

Unlike acquire, extend reports every failure: a missing marker, an
unreadable one, or one that another process is rewriting.

Examples:
  filelease extend --by 30m ./report.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runExtend,
	}

	cmd.Flags().DurationVar(&extendBy, "by", 0, "Duration to add to the lease (required)")

	return cmd
}

func runExtend(_ *cobra.Command, args []string) error {
	if extendBy == 0 {
		return errors.New("--by is required")
	}

	lease, err := filelease.New(args[0], leaseOptions()...)
	if err != nil {
		return err
	}

	if err := lease.AddTime(extendBy); err != nil {
		return err
	}

	expiresAt, err := lease.ExpiresAt()
	if err != nil {
		return fmt.Errorf("read back lease: %w", err)
	}

	printCommandHeader("EXTEND", lease.Target(), lease.MarkerPath())
	fmt.Printf("Expires: %s\n", formatTime(expiresAt))

	return nil
}
