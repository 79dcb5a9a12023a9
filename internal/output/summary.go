package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/draft"
	"github.com/inodb/vibe-consensus/internal/evidence"
)

// WriteDraftSummary writes the per-reference draft records as one JSON
// object keyed by reference order.
func WriteDraftSummary(w io.Writer, records map[int]*draft.Record) error {
	if records == nil {
		records = map[int]*draft.Record{}
	}
	return json.NewEncoder(w).Encode(records)
}

// WriteEvidenceSummary writes every evidence table as
// caller -> reference order -> position -> entry.
func WriteEvidenceSummary(w io.Writer, sets map[int]evidence.Set) error {
	out := make(map[calls.Caller]map[int]map[int64]*evidence.Entry)
	for order, set := range sets {
		for _, table := range set.Tables {
			byOrder, ok := out[table.Caller]
			if !ok {
				byOrder = make(map[int]map[int64]*evidence.Entry)
				out[table.Caller] = byOrder
			}
			byOrder[order] = table.Entries()
		}
	}
	return json.NewEncoder(w).Encode(out)
}

// WriteFile creates path and hands the file to write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
