package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-consensus/internal/duckdb"
)

func newQueryCmd() *cobra.Command {
	var (
		status   string
		showRuns bool
	)

	cmd := &cobra.Command{
		Use:   "query <db> <task-id> <ref-order> [position]",
		Short: "Inspect recorded decisions and evidence",
		Long: `Reads a provenance database written by "build --db". Without a position,
lists the decisions of the latest run for one reference. With a position,
shows every observation and the decision taken there.`,
		Example: `  vibe-consensus query runs.duckdb T1 1
  vibe-consensus query runs.duckdb T1 1 --status conflict
  vibe-consensus query runs.duckdb T1 1 3105`,
		Args: cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			order, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid reference order %q", args[2])
			}

			store, err := duckdb.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			q := &querier{store: store, cmd: cmd, taskID: args[1], order: order}
			if showRuns {
				if err := q.runs(); err != nil {
					return err
				}
			}
			if len(args) == 4 {
				pos, err := strconv.ParseInt(args[3], 10, 64)
				if err != nil || pos < 1 {
					return fmt.Errorf("invalid position %q", args[3])
				}
				return q.position(pos)
			}
			return q.decisions(status)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only list decisions with this status (applied, conflict, error)")
	cmd.Flags().BoolVar(&showRuns, "runs", false, "also list every run of the task")

	return cmd
}

type querier struct {
	store  *duckdb.Store
	cmd    *cobra.Command
	taskID string
	order  int
}

func (q *querier) runs() error {
	runs, err := q.store.Runs(q.cmd.Context(), q.taskID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(q.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tDURATION\tVC_THRESHOLD\tMIN_VC_SCORE\tREFS\tFAILED")
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), dash(r.Status), duration,
			r.VCThreshold, r.MinVCScore, r.RefNum, r.Failed)
	}
	return tw.Flush()
}

func (q *querier) decisions(status string) error {
	rows, err := q.store.Decisions(q.cmd.Context(), q.taskID, q.order, status)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(q.cmd.OutOrStdout(), "No decisions recorded for task %s, reference %d\n", q.taskID, q.order)
		return nil
	}

	tw := tabwriter.NewWriter(q.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tREF\tALT\tSCORE\tSTATUS\tDETAIL")
	for _, d := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", d.Position, dash(d.Ref), dash(d.Alt), d.Score, d.Status, dash(d.Detail))
	}
	return tw.Flush()
}

func (q *querier) position(pos int64) error {
	report, err := q.store.LookupPosition(q.cmd.Context(), q.taskID, q.order, pos)
	if err != nil {
		return err
	}

	out := q.cmd.OutOrStdout()
	if report.RunID == "" {
		fmt.Fprintf(out, "No runs recorded for task %s\n", q.taskID)
		return nil
	}
	fmt.Fprintf(out, "Run %s, reference %d, position %d\n\n", report.RunID, q.order, pos)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tALIGNER\tREF\tALT\tFREQ\tQUAL\tDP\tFILTER")
	for _, o := range report.Observations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%g\t%d\t%s\n",
			o.Caller, o.Aligner, o.Ref, o.Alt, dash(o.Freq), o.Quality, o.Depth, dash(o.Filter))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Decisions) == 0 {
		fmt.Fprintln(out, "\nDecision: none (no allele reached the voting threshold)")
		return nil
	}
	for _, d := range report.Decisions {
		fmt.Fprintf(out, "\nDecision: %s %s>%s score=%d", d.Status, dash(d.Ref), dash(d.Alt), d.Score)
		if d.Detail != "" {
			fmt.Fprintf(out, " (%s)", d.Detail)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
