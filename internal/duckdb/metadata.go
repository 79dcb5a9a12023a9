package duckdb

import (
	"context"
	"fmt"
	"os"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Input is one call file read by a run.
type Input struct {
	RefOrder int
	Caller   string
	Aligner  string
	FileFingerprint
}

// WriteInputs records the call files read by a run.
func (s *Store) WriteInputs(ctx context.Context, runID string, inputs []Input) error {
	if len(inputs) == 0 {
		return nil
	}
	return s.appendRows(ctx, "inputs", func(a *goduckdb.Appender) error {
		for _, in := range inputs {
			if err := a.AppendRow(
				runID, int64(in.RefOrder), in.Caller, in.Aligner,
				in.Path, in.Size, in.ModTime.UTC(),
			); err != nil {
				return fmt.Errorf("append input: %w", err)
			}
		}
		return nil
	})
}

// Inputs returns the call files recorded for a run.
func (s *Store) Inputs(ctx context.Context, runID string) ([]Input, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ref_order, caller, aligner, path, size, mod_time
		FROM inputs WHERE run_id=?
		ORDER BY ref_order, caller, aligner`, runID)
	if err != nil {
		return nil, fmt.Errorf("query inputs: %w", err)
	}
	defer rows.Close()

	var inputs []Input
	for rows.Next() {
		var in Input
		if err := rows.Scan(&in.RefOrder, &in.Caller, &in.Aligner, &in.Path, &in.Size, &in.ModTime); err != nil {
			return nil, fmt.Errorf("scan input: %w", err)
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inputs: %w", err)
	}
	return inputs, nil
}
