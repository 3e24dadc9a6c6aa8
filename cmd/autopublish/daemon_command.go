package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autopublish/internal/daemon"
	"autopublish/internal/daemonctl"
	"autopublish/internal/daemonrun"
	"autopublish/internal/queue"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:     "daemon",
		Aliases: []string{"run"},
		Short:   "Run admission cycles on the configured interval (foreground)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override [logging] level")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and settings status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonStatus(cmd, ctx)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			renderStatus(cmd, status)
			return nil
		},
	}
}

// daemonStatus asks a running daemon for its snapshot, or builds one from
// the store when the daemon is down or its API is disabled.
func daemonStatus(cmd *cobra.Command, ctx *commandContext) (daemon.Status, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return daemon.Status{}, err
	}
	running, pid, err := daemonctl.Running(cfg)
	if err != nil {
		return daemon.Status{}, err
	}
	if running {
		if client := newDaemonClient(cfg); client != nil {
			return client.status(cmd.Context())
		}
	}

	// Without the daemon API the snapshot comes straight from the store.
	status := daemon.Status{
		Running:      running,
		PID:          pid,
		DatabasePath: cfg.Paths.DatabasePath,
		LockPath:     cfg.Paths.LockPath,
		Interval:     cfg.CycleInterval().String(),
	}
	err = ctx.withStore(func(store *queue.Store) error {
		health, err := store.Health(cmd.Context())
		if err != nil {
			return err
		}
		settings, err := store.LoadSettings(cmd.Context())
		if err != nil {
			return err
		}
		status.Queue = health
		view := daemon.NewSettingsView(settings)
		status.Settings = &view
		return nil
	})
	return status, err
}

func renderStatus(cmd *cobra.Command, status daemon.Status) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	daemonKind, daemonMsg := statusWarn, "not running"
	if status.Running {
		daemonKind, daemonMsg = statusOK, "running"
		if status.PID > 0 {
			daemonMsg = fmt.Sprintf("running (pid %d)", status.PID)
		}
	}
	lines := []string{renderStatusLine("Daemon", daemonKind, daemonMsg, colorize)}

	if s := status.Settings; s != nil {
		kind, msg := statusWarn, "disabled"
		if s.Enabled {
			kind, msg = statusOK, "enabled"
			if s.DraftMode {
				msg = "enabled (draft mode)"
			}
		}
		lines = append(lines,
			renderStatusLine("Auto-publish", kind, msg, colorize),
			renderStatusLine("Published today", statusInfo, fmt.Sprintf("%d of %d (%s)", s.PublishedToday, s.DailyCap, s.CounterDay), colorize),
		)
	}
	if last := status.LastCycle; last != nil {
		kind := statusOK
		if last.Err != "" {
			kind = statusError
		}
		when := ""
		if status.LastCycleAt != nil {
			when = status.LastCycleAt.Local().Format(time.Kitchen) + ": "
		}
		lines = append(lines, renderStatusLine("Last cycle", kind, when+last.Reason, colorize))
	}

	q := status.Queue
	queueKind := statusOK
	if q.AutoFailed > 0 || q.NeedsReview > 0 {
		queueKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Queue", queueKind,
		fmt.Sprintf("%d pending (%d retrying), %d auto_failed, %d need review", q.Pending, q.Retrying, q.AutoFailed, q.NeedsReview), colorize))
	if status.Error != "" {
		lines = append(lines, renderStatusLine("Error", statusError, status.Error, colorize))
	}
	if status.DatabasePath != "" {
		lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	}
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}
