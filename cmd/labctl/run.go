package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shehryarbajwa/virtual-lab/internal/session"
	"github.com/shehryarbajwa/virtual-lab/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch a lab and keep it running until the session ends",
	Long: `Launch a lab, wait for the notebook to come up and count down the session.
The lab is stopped when the countdown reaches zero or on interrupt.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, cleanup, err := newController(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	m := session.NewMachine(os.Getenv("USER"), session.Deps{Controller: ctrl}, cfg.SessionConfig())
	defer m.Close()

	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Launching lab...")
	if _, err := m.Launch(ctx); err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}

	watchErr := watch(ctx, updates, out)

	if m.Snapshot().Status == models.StatusRunning {
		fmt.Fprintln(out, "\nStopping lab...")
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.StopTimeout.Duration)
		defer cancel()
		if _, err := m.Stop(stopCtx); err != nil {
			return fmt.Errorf("lab stopped locally but the stop request failed: %w", err)
		}
		fmt.Fprintln(out, "Lab stopped.")
	}
	return watchErr
}

// watch prints session changes until the lab stops or ctx is cancelled.
func watch(ctx context.Context, updates <-chan models.LabSession, out io.Writer) error {
	var last models.LabSession
	for {
		select {
		case <-ctx.Done():
			return nil
		case lab, ok := <-updates:
			if !ok {
				return nil
			}
			report(out, last, lab)
			last = lab
			if lab.Status == models.StatusStopped {
				return nil
			}
		}
	}
}

func report(out io.Writer, prev, cur models.LabSession) {
	switch {
	case cur.Status == models.StatusRunning && prev.Status != models.StatusRunning:
		fmt.Fprintf(out, "Lab running (%s), waiting for Jupyter at %s\n", cur.RemoteHandle, cur.EndpointURL)
	case cur.Ready && !prev.Ready:
		if cur.Degraded {
			fmt.Fprintln(out, "Jupyter is still starting up; it may take a moment before the page loads.")
		}
		fmt.Fprintf(out, "Jupyter ready: %s\n", cur.EndpointURL)
	case cur.Status == models.StatusStopped && prev.Status != models.StatusStopped:
		if cur.StopReason == models.StopReasonExpired {
			fmt.Fprintln(out, "\nSession time is up, lab stopped.")
		}
		if cur.LastError != "" {
			fmt.Fprintf(out, "Warning: %s\n", cur.LastError)
		}
	case cur.Ready && cur.RemainingSeconds != prev.RemainingSeconds:
		fmt.Fprintf(out, "\rTime remaining: %s  runtime: %d min", models.FormatCountdown(cur.RemainingSeconds), cur.Usage.RuntimeMinutes)
	}
}
