package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"autopublish/internal/queue"
)

func newDecisionsCommand(ctx *commandContext) *cobra.Command {
	decisionsCmd := &cobra.Command{
		Use:     "decisions",
		Aliases: []string{"log"},
		Short:   "Read the admission decision log",
	}
	decisionsCmd.AddCommand(newDecisionsListCommand(ctx))
	decisionsCmd.AddCommand(newDecisionsExportCommand(ctx))
	return decisionsCmd
}

func newDecisionsListCommand(ctx *commandContext) *cobra.Command {
	var (
		cycleID     string
		candidateID int64
		tags        []string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent decisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			decisions, err := parseDecisionTags(tags)
			if err != nil {
				return err
			}
			filter := queue.DecisionFilter{
				CycleID:     cycleID,
				CandidateID: candidateID,
				Decisions:   decisions,
				Limit:       limit,
			}
			return ctx.withStore(func(store *queue.Store) error {
				records, err := store.ListDecisions(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if records == nil {
						records = []queue.DecisionRecord{}
					}
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No decisions recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDecisionTable(records))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cycleID, "cycle", "", "Only decisions from this cycle")
	cmd.Flags().Int64Var(&candidateID, "candidate", 0, "Only decisions for this candidate")
	cmd.Flags().StringSliceVarP(&tags, "decision", "d", nil, "Filter by decision tag (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to show (0 for all)")
	return cmd
}

func renderDecisionTable(records []queue.DecisionRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			formatWhen(rec.CreatedAt),
			strconv.FormatInt(rec.CandidateID, 10),
			truncate(rec.Snapshot.Title, maxTitleWidth),
			string(rec.Decision),
			truncate(rec.Reason, maxTitleWidth),
			shortCycle(rec.CycleID),
		})
	}
	return renderTable(
		[]string{"When", "ID", "Title", "Decision", "Reason", "Cycle"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func shortCycle(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newDecisionsExportCommand(ctx *commandContext) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write decisions as JSON lines, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := queue.DecisionFilter{Ascending: true}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			return ctx.withStore(func(store *queue.Store) error {
				records, err := store.ListDecisions(cmd.Context(), filter)
				if err != nil {
					return err
				}
				lines := newJSONLines(cmd.OutOrStdout())
				for _, rec := range records {
					if err := lines.write(rec); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 0, "Only decisions newer than this (e.g. 24h)")
	return cmd
}

func parseDecisionTags(values []string) ([]queue.Decision, error) {
	var out []queue.Decision
	for _, raw := range values {
		d, ok := queue.ParseDecision(raw)
		if !ok {
			return nil, fmt.Errorf("unknown decision %q", raw)
		}
		out = append(out, d)
	}
	return out, nil
}
