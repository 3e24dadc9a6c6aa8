package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"autopublish/internal/daemonctl"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 30 * time.Second
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			return startDaemon(cmd, ctx)
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := stopDaemon(cmd, ctx)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			return err
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := stopDaemon(cmd, ctx); err != nil && !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				return err
			}
			return startDaemon(cmd, ctx)
		},
	}
}

func startDaemon(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	result, err := daemonctl.Start(cfg, exe, ctx.configPath, startWaitTimeout)
	if err != nil {
		return err
	}
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon already running (pid %d)\n", result.PID)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
	}
	return nil
}

func stopDaemon(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	result, err := daemonctl.Stop(cfg, stopGracePeriod)
	if err != nil {
		return err
	}
	if result.ForcedKill {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon did not exit in %s; killed pid %d\n", stopGracePeriod, result.PID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daemon stopped (pid %d)\n", result.PID)
	return nil
}
