package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"autopublish/internal/admission"
	"autopublish/internal/daemon"
	"autopublish/internal/daemonrun"
)

func newCycleCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one admission cycle now",
		Long: "Run one admission cycle now. When the daemon holds the lock the cycle is\n" +
			"requested through its API instead, so two cycles never overlap.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			lock, err := daemon.AcquireLock(cfg.Paths.LockPath)
			if errors.Is(err, daemon.ErrLocked) {
				client := newDaemonClient(cfg)
				if client == nil {
					return errors.New("daemon is running and its API is disabled; enable [api] or stop the daemon")
				}
				summary, err := client.runCycle(cmd.Context())
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, summary)
			}
			if err != nil {
				return err
			}
			defer lock.Unlock() //nolint:errcheck

			rt, err := daemonrun.Build(cfg, ctx.cliLogger(cmd))
			if err != nil {
				return err
			}
			defer rt.Close()

			summary := rt.Orchestrator.RunCycle(cmd.Context())
			return printSummary(cmd, ctx, summary)
		},
	}
}

func printSummary(cmd *cobra.Command, ctx *commandContext, summary admission.Summary) error {
	if ctx.JSONMode() {
		return writeJSON(cmd, summary)
	}
	out := cmd.OutOrStdout()
	if summary.CycleID != "" {
		fmt.Fprintf(out, "Cycle %s (%s)\n", summary.CycleID, summary.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(out, summary.Reason)
	if summary.Selected > 0 {
		fmt.Fprintf(out, "Quota %d, selected %d\n", summary.Quota, summary.Selected)
	}
	if summary.Err != "" {
		return fmt.Errorf("cycle aborted: %s", summary.Err)
	}
	return nil
}
