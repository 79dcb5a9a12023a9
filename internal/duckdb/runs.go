package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run states. Only finished runs are served by the position and decision
// queries.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunAborted  = "aborted"
)

// Run is one invocation of the consensus pipeline on a task.
type Run struct {
	ID          string
	TaskID      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Status      string
	VCThreshold float64
	MinVCScore  int
	RefNum      int
	Failed      int // references that produced no draft
}

// Duration returns how long the run took, zero while it is running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRun creates a run record with a fresh ID.
func NewRun(taskID string, vcThreshold float64, minVCScore, refNum int) Run {
	return Run{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		StartedAt:   time.Now().UTC(),
		Status:      RunRunning,
		VCThreshold: vcThreshold,
		MinVCScore:  minVCScore,
		RefNum:      refNum,
	}
}

// BeginRun inserts the run row in the running state.
func (s *Store) BeginRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(run_id, task_id, started_at, vc_threshold, min_vc_score, ref_num, failed, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.StartedAt, r.VCThreshold, int64(r.MinVCScore), int64(r.RefNum), int64(r.Failed), RunRunning)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun marks a run finished and records its failed reference count.
func (s *Store) FinishRun(ctx context.Context, runID string, failed int) error {
	return s.closeRun(ctx, runID, RunFinished, failed)
}

// AbortRun marks a run that stopped before writing its reports.
func (s *Store) AbortRun(ctx context.Context, runID string, failed int) error {
	return s.closeRun(ctx, runID, RunAborted, failed)
}

func (s *Store) closeRun(ctx context.Context, runID, status string, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET failed=?, status=?, finished_at=? WHERE run_id=? AND status=?`,
		int64(failed), status, time.Now().UTC(), runID, RunRunning)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s is not running", runID)
	}
	return nil
}

// Runs returns every run of a task, oldest first.
func (s *Store) Runs(ctx context.Context, taskID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		run_id, task_id, started_at, finished_at, status, vc_threshold, min_vc_score, ref_num, failed
		FROM runs WHERE task_id=?
		ORDER BY started_at, run_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			finished sql.NullTime
			status   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.StartedAt, &finished, &status,
			&r.VCThreshold, &r.MinVCScore, &r.RefNum, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		r.Status = status.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the ID of the most recent finished run of a task, or
// "" when the task has none. Running and aborted runs are ignored.
func (s *Store) LatestRun(ctx context.Context, taskID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT run_id FROM runs
		WHERE task_id=? AND status=?
		ORDER BY started_at DESC, run_id DESC LIMIT 1`, taskID, RunFinished).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return id, nil
}
