// Package evidence aggregates normalized call records into per-caller
// evidence tables keyed by position, allele and aligner.
package evidence

import (
	"sort"

	"github.com/inodb/vibe-consensus/internal/calls"
)

// Observation is one aligner's support for an allele at a position.
type Observation struct {
	Filter  string  `json:"FILTER"`
	Freq    string  `json:"FREQ"`
	Quality float64 `json:"QUAL"`
	Depth   int     `json:"DP"`
}

// Entry holds every allele observed at one position by one caller.
// Alleles maps alternate allele -> aligner -> observation.
type Entry struct {
	Ref     string                            `json:"REF"`
	Alleles map[string]map[string]Observation `json:"SNV"`
}

// AlleleNames returns the entry's alleles in sorted order.
func (e *Entry) AlleleNames() []string {
	names := make([]string, 0, len(e.Alleles))
	for alt := range e.Alleles {
		names = append(names, alt)
	}
	sort.Strings(names)
	return names
}

// Table is one caller's evidence for one reference sequence.
type Table struct {
	Caller   calls.Caller
	RefOrder int
	entries  map[int64]*Entry
}

// NewTable creates an empty evidence table.
func NewTable(caller calls.Caller, refOrder int) *Table {
	return &Table{
		Caller:   caller,
		RefOrder: refOrder,
		entries:  make(map[int64]*Entry),
	}
}

// Add records one call from the given aligner. The first record seen at a
// position fixes the entry's reference allele; a repeated
// (position, allele, aligner) replaces the earlier observation.
func (t *Table) Add(aligner string, rec calls.CallRecord) {
	e, ok := t.entries[rec.Position]
	if !ok {
		e = &Entry{Ref: rec.Ref, Alleles: make(map[string]map[string]Observation)}
		t.entries[rec.Position] = e
	}
	byAligner, ok := e.Alleles[rec.Alt]
	if !ok {
		byAligner = make(map[string]Observation)
		e.Alleles[rec.Alt] = byAligner
	}
	byAligner[aligner] = Observation{
		Filter:  rec.Filter,
		Freq:    rec.Freq,
		Quality: rec.Quality,
		Depth:   rec.Depth,
	}
}

// Entry returns the evidence at a position.
func (t *Table) Entry(pos int64) (*Entry, bool) {
	e, ok := t.entries[pos]
	return e, ok
}

// Positions returns every position with evidence, ascending.
func (t *Table) Positions() []int64 {
	positions := make([]int64, 0, len(t.entries))
	for pos := range t.entries {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return positions
}

// Len returns the number of positions in the table.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries exposes the position map for serialization.
func (t *Table) Entries() map[int64]*Entry {
	return t.entries
}

// Set is the evidence of every caller for one reference sequence.
// Tables are kept apart per caller and only merged by voting.
type Set struct {
	RefOrder int
	Tables   []*Table
}

// Table returns the table of a caller, or nil.
func (s Set) Table(caller calls.Caller) *Table {
	for _, t := range s.Tables {
		if t.Caller == caller {
			return t
		}
	}
	return nil
}

// Empty reports whether no caller produced any evidence.
func (s Set) Empty() bool {
	for _, t := range s.Tables {
		if t.Len() > 0 {
			return false
		}
	}
	return true
}
