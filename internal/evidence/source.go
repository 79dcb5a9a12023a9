package evidence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"golang.org/x/sync/errgroup"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/task"
)

// Source loads the call records for one (reference, caller, aligner).
type Source interface {
	Load(ctx context.Context, refOrder int, caller calls.Caller, aligner string) ([]calls.CallRecord, error)
}

// MissingInputError reports a required call file that does not exist.
type MissingInputError struct {
	RefOrder int
	Caller   calls.Caller
	Aligner  string
	Path     string
}

func (e *MissingInputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("missing %s calls for aligner %s, reference %d", e.Caller, e.Aligner, e.RefOrder)
	}
	return fmt.Sprintf("missing %s calls for aligner %s, reference %d: %s", e.Caller, e.Aligner, e.RefOrder, e.Path)
}

// FileSource reads call files from a task directory.
type FileSource struct {
	layout     task.Layout
	normalizer *calls.Normalizer
}

// NewFileSource creates a Source backed by the task directory layout.
func NewFileSource(layout task.Layout, normalizer *calls.Normalizer) *FileSource {
	return &FileSource{layout: layout, normalizer: normalizer}
}

// Path returns the call file read for the given combination.
func (s *FileSource) Path(refOrder int, caller calls.Caller, aligner string) string {
	return s.layout.CallFile(aligner, refOrder, string(caller))
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context, refOrder int, caller calls.Caller, aligner string) ([]calls.CallRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(refOrder, caller, aligner)
	records, err := s.normalizer.NormalizeFile(path, caller)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &MissingInputError{RefOrder: refOrder, Caller: caller, Aligner: aligner, Path: path}
		}
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return records, nil
}

// Key identifies one call stream.
type Key struct {
	RefOrder int
	Caller   calls.Caller
	Aligner  string
}

// StaticSource serves fixed records, e.g. for tests or replays.
type StaticSource map[Key][]calls.CallRecord

// Load implements Source.
func (s StaticSource) Load(_ context.Context, refOrder int, caller calls.Caller, aligner string) ([]calls.CallRecord, error) {
	records, ok := s[Key{RefOrder: refOrder, Caller: caller, Aligner: aligner}]
	if !ok {
		return nil, &MissingInputError{RefOrder: refOrder, Caller: caller, Aligner: aligner}
	}
	return records, nil
}

// Aggregate loads every (caller, aligner) stream of one reference and
// builds one table per caller. Streams are loaded concurrently but
// inserted in caller then aligner order, so the result is deterministic.
// Any failed stream fails the whole reference.
func Aggregate(ctx context.Context, src Source, refOrder int, callers []calls.Caller, aligners []string) (Set, error) {
	loaded := make([][]calls.CallRecord, len(callers)*len(aligners))

	g, gctx := errgroup.WithContext(ctx)
	for i, caller := range callers {
		for j, aligner := range aligners {
			idx := i*len(aligners) + j
			g.Go(func() error {
				records, err := src.Load(gctx, refOrder, caller, aligner)
				if err != nil {
					return err
				}
				loaded[idx] = records
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Set{}, fmt.Errorf("aggregate reference %d: %w", refOrder, err)
	}

	set := Set{RefOrder: refOrder, Tables: make([]*Table, len(callers))}
	for i, caller := range callers {
		table := NewTable(caller, refOrder)
		for j, aligner := range aligners {
			for _, rec := range loaded[i*len(aligners)+j] {
				table.Add(aligner, rec)
			}
		}
		set.Tables[i] = table
	}
	return set, nil
}
