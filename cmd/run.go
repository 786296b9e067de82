package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"filelease/pkg/filelease"
	"filelease/pkg/metrics"
)

var (
	runFor         time.Duration
	runWait        time.Duration
	runPoll        time.Duration
	runMetricsAddr string
)

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [target] -- command [args...]",
		Short: "Run a command while holding a renewed lease",
		Long: `Takes the lease on the target, runs the command, and releases the lease
when the command exits. While the command runs the lease is renewed every
90% of --for, so a long job keeps it as long as it needs, and a crashed
filelease process leaves a marker that expires on its own.

If the lease is held elsewhere, run polls for it at --poll intervals for up
to --wait before giving up. The exit status is the command's.

Examples:
  filelease run ./report.txt -- ./rebuild-report.sh
  filelease run --for 10s --wait 2m ./db.sqlite -- sqlite3 db.sqlite .dump
  filelease run --metrics-addr :9090 ./report.txt -- ./long-job`,
		Args: cobra.MinimumNArgs(2),
		RunE: runRun,
	}

	cmd.Flags().DurationVar(&runFor, "for", 30*time.Second, "Lease duration, renewed while the command runs")
	cmd.Flags().DurationVar(&runWait, "wait", 0, "How long to wait for a held lease (0 fails immediately)")
	cmd.Flags().DurationVar(&runPoll, "poll", 500*time.Millisecond, "Interval between acquisition attempts while waiting")
	cmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runFor <= 0 {
		return errors.New("--for must be positive")
	}
	if runPoll <= 0 {
		return errors.New("--poll must be positive")
	}

	var extra []filelease.Option
	if runMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		extra = append(extra, filelease.WithObserver(metrics.New(reg)))

		srv, err := serveMetrics(runMetricsAddr, reg)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	lease, err := filelease.New(args[0], leaseOptions(extra...)...)
	if err != nil {
		return err
	}

	if err := waitForLease(ctx, lease, runFor, runWait, runPoll); err != nil {
		return err
	}
	defer func() {
		if closeErr := lease.Close(); closeErr != nil {
			logger.Warn("release lease", "marker", lease.MarkerPath(), "error", closeErr)
		}
	}()

	logger.Info("lease acquired", "lease_id", lease.ID(), "marker", lease.MarkerPath())

	child := exec.CommandContext(ctx, args[1], args[2:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	err = child.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &exitCodeError{code: childExitCode(exitErr)}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", args[1], err)
	}

	return nil
}

// childExitCode follows the shell convention of 128+signal for a child
// killed by a signal, where ExitCode reports -1.
func childExitCode(err *exec.ExitError) int {
	if code := err.ExitCode(); code >= 0 {
		return code
	}

	if status, ok := err.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}

	return 1
}

// waitForLease takes the lease with renewal, polling at the limiter's
// pace until wait runs out.
func waitForLease(ctx context.Context, lease *filelease.FileLease, d, wait, poll time.Duration) error {
	if lease.TryAcquire(d, true) {
		return nil
	}

	if wait <= 0 {
		state := inspectLease(lease)
		return fmt.Errorf("lease on %s not acquired: %s", lease.Target(), state.describe(time.Now()))
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(poll), 1)
	limiter.Allow() // spent by the attempt above

	progress := startProgress("waiting for lease on " + lease.Target())
	defer progress.Stop()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("lease on %s not acquired within %s: %w", lease.Target(), wait, err)
		}

		if lease.TryAcquire(d, true) {
			return nil
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())

	return srv, nil
}
