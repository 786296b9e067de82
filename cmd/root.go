package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"filelease/pkg/filelease"
)

var (
	configPath string
	leaseExt   string
	logLevel   string

	logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filelease",
		Short: "Take, inspect and release file leases backed by marker files",
		Long: `filelease coordinates exclusive access to a file between processes.

A lease is recorded in a marker next to the target: report.txt is guarded by
report.lock, which holds the lease expiry. A missing or expired marker means
the target is free.

Commands:
  acquire    Take a lease and leave it in place until it expires
  status     Show who holds a target's lease and until when
  extend     Push an existing lease's expiry further out
  release    Remove a target's marker
  run        Hold a renewed lease while a command runs

Examples:
  # Hold report.txt for ten minutes
    filelease acquire --for 10m ./report.txt

  # Check whether it is free
    filelease status ./report.txt

  # Run a job under the lease, waiting up to a minute for it
    filelease run --wait 1m ./report.txt -- ./rebuild-report.sh`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: prepare,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file with default settings")
	cmd.PersistentFlags().StringVar(&leaseExt, "ext", filelease.DefaultExtension, "Extension of the marker file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func buildCommandTree() *cobra.Command {
	rootCmd := buildRootCommand()
	rootCmd.AddCommand(buildAcquireCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildExtendCommand())
	rootCmd.AddCommand(buildReleaseCommand())
	rootCmd.AddCommand(buildRunCommand())

	return rootCmd
}

// prepare applies the config file under explicit flags and builds the
// logger.
func prepare(cmd *cobra.Command, _ []string) error {
	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		applyConfig(cmd, cfg)
	}

	l, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	logger = l

	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func leaseOptions(extra ...filelease.Option) []filelease.Option {
	opts := []filelease.Option{
		filelease.WithLogger(logger),
		filelease.WithExtension(leaseExt),
	}

	return append(opts, extra...)
}
