package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"filelease/pkg/filelease"
)

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [target]",
		Short: "Show the lease state of a file",
		Long: `Reads the target's marker and reports one of:
  unlocked      no marker
  held until    a valid lease is in place
  expired at    the marker is stale and can be reclaimed
  unreadable    the marker exists but cannot be parsed or opened

Examples:
  filelease status ./report.txt
  filelease status --ext lease ./report.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runStatus,
	}
}

func runStatus(_ *cobra.Command, args []string) error {
	lease, err := filelease.New(args[0], leaseOptions()...)
	if err != nil {
		return err
	}

	state := inspectLease(lease)

	printCommandHeader("STATUS", lease.Target(), state.Marker)
	fmt.Printf("State:   %s\n", state.describe(time.Now()))

	return nil
}
