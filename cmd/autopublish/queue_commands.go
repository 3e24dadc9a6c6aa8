package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autopublish/internal/daemon"
	"autopublish/internal/ingest"
	"autopublish/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage candidates",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueImportCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearReviewCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlags []string
		review      bool
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.CandidateFilter{Limit: limit}
			for _, raw := range statusFlags {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			if cmd.Flags().Changed("review") {
				filter.NeedsReview = &review
			}
			return ctx.withStore(func(store *queue.Store) error {
				items, err := store.ListCandidates(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					views := make([]daemon.CandidateView, 0, len(items))
					for _, item := range items {
						views = append(views, daemon.NewCandidateView(item))
					}
					return writeJSON(cmd, views)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No candidates")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderCandidateTable(items))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&review, "review", false, "Only flagged (true) or unflagged (false) candidates")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func renderCandidateTable(items []*queue.Candidate) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		flags := ""
		if item.NeedsReview {
			flags = "review"
		}
		if !item.HasImage() {
			flags = strings.TrimSpace(flags + " no-image")
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			truncate(item.Title, maxTitleWidth),
			string(item.Status),
			strconv.FormatFloat(item.QualityScore, 'f', 1, 64),
			string(item.Trust.Label),
			strconv.Itoa(item.AttemptCount),
			flags,
			item.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Status", "Quality", "Trust", "Attempts", "Flags", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func newQueueImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import candidates from a YAML or JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				result, err := ingest.ImportFile(cmd.Context(), store, args[0], cmd.InOrStdin())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, importReport(result))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d candidate(s)\n", len(result.Imported))
				if len(result.Skipped) > 0 {
					fmt.Fprintf(out, "Skipped %d already known: %s\n", len(result.Skipped), strings.Join(result.Skipped, ", "))
				}
				for _, recErr := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", recErr)
				}
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d record(s) rejected", len(result.Errors))
				}
				return nil
			})
		},
	}
}

type importSummary struct {
	Imported []int64  `json:"imported"`
	Skipped  []string `json:"skipped"`
	Errors   []string `json:"errors"`
}

func importReport(result ingest.Result) importSummary {
	report := importSummary{Imported: []int64{}, Skipped: result.Skipped, Errors: []string{}}
	if report.Skipped == nil {
		report.Skipped = []string{}
	}
	for _, c := range result.Imported {
		report.Imported = append(report.Imported, c.ID)
	}
	for _, recErr := range result.Errors {
		report.Errors = append(report.Errors, recErr.Error())
	}
	return report
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [ID...]",
		Short: "Return auto_failed candidates to pending with a fresh attempt budget",
		Long:  "Return auto_failed candidates to pending. With no IDs every auto_failed candidate is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.RetryAutoFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d candidate(s) returned to pending\n", count)
				return nil
			})
		},
	}
}

func newQueueClearReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-review [ID...]",
		Short: "Clear the review flag so candidates are selectable again",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *queue.Store) error {
				count, err := store.ClearReview(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d candidate(s) cleared for review\n", count)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, health)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				integrity := statusOK
				if !health.IntegrityCheck {
					integrity = statusError
				}
				lines := []string{
					renderStatusLine("Database", statusInfo, health.DBPath, colorize),
					renderStatusLine("Readable", kindFor(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize),
					renderStatusLine("Schema version", statusInfo, strconv.Itoa(health.SchemaVersion), colorize),
					renderStatusLine("Integrity", integrity, yesNo(health.IntegrityCheck), colorize),
					renderStatusLine("Candidates", statusInfo, strconv.Itoa(health.TotalCandidates), colorize),
					renderStatusLine("Decisions", statusInfo, strconv.Itoa(health.TotalDecisions), colorize),
				}
				if health.Error != "" {
					lines = append(lines, renderStatusLine("Error", statusError, health.Error, colorize))
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
				if !health.IntegrityCheck {
					return errors.New("queue database failed its integrity check")
				}
				return nil
			})
		},
	}
}

func kindFor(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid candidate id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
