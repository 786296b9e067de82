package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"filelease/pkg/filelease"
	"filelease/pkg/leasestore"
)

func buildReleaseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "release [target]",
		Short: "Remove a file's lease marker",
		Long: `Deletes the target's marker whoever wrote it, making the target free
immediately. Releasing an unlocked target is not an error.

Examples:
  filelease release ./report.txt`,
		Args: cobra.ExactArgs(1),
		RunE: runRelease,
	}
}

func runRelease(_ *cobra.Command, args []string) error {
	lease, err := filelease.New(args[0], leaseOptions()...)
	if err != nil {
		return err
	}

	state := inspectLease(lease)

	if err := leasestore.New(lease.MarkerPath()).Remove(); err != nil {
		return err
	}

	printCommandHeader("RELEASE", lease.Target(), lease.MarkerPath())
	if !state.Exists {
		fmt.Println("Nothing to release.")
		return nil
	}

	fmt.Printf("Released (was %s)\n", state.describe(time.Now()))

	return nil
}
