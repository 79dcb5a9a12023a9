package duckdb

import (
	"context"
	"fmt"
	"maps"
	"slices"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-consensus/internal/draft"
	"github.com/inodb/vibe-consensus/internal/evidence"
)

// ObservationRow is one stored observation.
type ObservationRow struct {
	RunID    string
	RefOrder int
	Position int64
	Ref      string
	Alt      string
	Caller   string
	Aligner  string
	evidence.Observation
}

// DecisionRow is one stored draft decision.
type DecisionRow struct {
	RunID    string
	RefOrder int
	draft.Decision
}

// PositionReport gathers everything recorded for one position.
type PositionReport struct {
	RunID        string
	Observations []ObservationRow
	Decisions    []DecisionRow
}

// WriteObservations batch-inserts every observation of an evidence set.
func (s *Store) WriteObservations(ctx context.Context, runID, taskID string, set evidence.Set) error {
	if set.Empty() {
		return nil
	}
	return s.appendRows(ctx, "observations", func(a *goduckdb.Appender) error {
		for _, table := range set.Tables {
			for _, pos := range table.Positions() {
				entry, _ := table.Entry(pos)
				for _, alt := range entry.AlleleNames() {
					byAligner := entry.Alleles[alt]
					for _, aligner := range slices.Sorted(maps.Keys(byAligner)) {
						obs := byAligner[aligner]
						if err := a.AppendRow(
							runID, taskID, int64(set.RefOrder), pos, entry.Ref, alt,
							string(table.Caller), aligner,
							obs.Filter, obs.Freq, obs.Quality, int64(obs.Depth),
						); err != nil {
							return fmt.Errorf("append observation: %w", err)
						}
					}
				}
			}
		}
		return nil
	})
}

// WriteDecisions batch-inserts the decisions of a draft record.
func (s *Store) WriteDecisions(ctx context.Context, runID, taskID string, rec *draft.Record) error {
	if len(rec.Decisions) == 0 {
		return nil
	}
	return s.appendRows(ctx, "decisions", func(a *goduckdb.Appender) error {
		for _, d := range rec.Decisions {
			if err := a.AppendRow(
				runID, taskID, int64(rec.RefOrder), d.Position,
				d.Ref, d.Alt, int64(d.Score), d.Status, d.Detail,
			); err != nil {
				return fmt.Errorf("append decision: %w", err)
			}
		}
		return nil
	})
}

// Decisions returns the decisions of the latest run of a task for one
// reference, ordered by position. An empty status selects every status.
func (s *Store) Decisions(ctx context.Context, taskID string, refOrder int, status string) ([]DecisionRow, error) {
	runID, err := s.LatestRun(ctx, taskID)
	if err != nil || runID == "" {
		return nil, err
	}

	query := `SELECT run_id, ref_order, pos, ref, alt, score, status, detail
		FROM decisions WHERE run_id=? AND ref_order=?`
	args := []any{runID, int64(refOrder)}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY pos`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// LookupPosition returns the observations and decisions the latest run of
// a task recorded at one position.
func (s *Store) LookupPosition(ctx context.Context, taskID string, refOrder int, pos int64) (*PositionReport, error) {
	runID, err := s.LatestRun(ctx, taskID)
	if err != nil {
		return nil, err
	}
	report := &PositionReport{RunID: runID}
	if runID == "" {
		return report, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, ref_order, pos, ref, alt, caller, aligner, filter, freq, qual, depth
		FROM observations
		WHERE run_id=? AND ref_order=? AND pos=?
		ORDER BY caller, alt, aligner`, runID, int64(refOrder), pos)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	report.Observations, err = scanObservations(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT
		run_id, ref_order, pos, ref, alt, score, status, detail
		FROM decisions
		WHERE run_id=? AND ref_order=? AND pos=?`, runID, int64(refOrder), pos)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	report.Decisions, err = scanDecisions(rows)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// rowScanner is the subset of *sql.Rows used by the scan helpers.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanObservations(rows rowScanner) ([]ObservationRow, error) {
	var out []ObservationRow
	for rows.Next() {
		var o ObservationRow
		if err := rows.Scan(
			&o.RunID, &o.RefOrder, &o.Position, &o.Ref, &o.Alt,
			&o.Caller, &o.Aligner, &o.Filter, &o.Freq, &o.Quality, &o.Depth,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}
	return out, nil
}

func scanDecisions(rows rowScanner) ([]DecisionRow, error) {
	var out []DecisionRow
	for rows.Next() {
		var d DecisionRow
		if err := rows.Scan(
			&d.RunID, &d.RefOrder, &d.Position, &d.Ref, &d.Alt,
			&d.Score, &d.Status, &d.Detail,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}
