// Package draft applies accepted consensus calls to a reference sequence.
package draft

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfOrder is returned when an edit does not follow the previous one.
var ErrOutOfOrder = errors.New("edit positions must be strictly ascending")

// MismatchError reports a reference allele that does not fit the working
// sequence at the time it is applied.
type MismatchError struct {
	Position int64  // anchor position of the edit
	Slot     int64  // position where the check failed
	Expected string // base claimed by the reference allele
	Found    string // current slot content
	Reason   string
}

func (e *MismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("position %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("position %d: reference base %q at %d does not match %q", e.Position, e.Expected, e.Slot, e.Found)
}

// Ledger is a position-indexed working copy of a reference sequence.
// Each original position owns exactly one slot. An edit clears the slots
// covered by the non-anchor bases of its reference allele and stores the
// whole alternate allele in the anchor slot, so later positions keep
// their original coordinates whatever the edit length.
type Ledger struct {
	slots    []string
	consumed []bool
	last     int64
}

// NewLedger creates a ledger holding one slot per base of seq.
func NewLedger(seq string) *Ledger {
	slots := make([]string, len(seq))
	for i := 0; i < len(seq); i++ {
		slots[i] = seq[i : i+1]
	}
	return &Ledger{slots: slots, consumed: make([]bool, len(seq))}
}

// Len returns the number of slots.
func (l *Ledger) Len() int {
	return len(l.slots)
}

// Slot returns the current content of a 1-based position.
func (l *Ledger) Slot(pos int64) (string, bool) {
	if pos < 1 || pos > int64(len(l.slots)) {
		return "", false
	}
	return l.slots[pos-1], true
}

// Check verifies that ref can be applied at pos: the anchor must be in
// range and untouched, and every non-anchor base of ref must match the
// current slot content.
func (l *Ledger) Check(pos int64, ref string) error {
	if ref == "" {
		return &MismatchError{Position: pos, Slot: pos, Reason: "empty reference allele"}
	}
	if pos < 1 || pos > int64(len(l.slots)) {
		return &MismatchError{Position: pos, Slot: pos,
			Reason: fmt.Sprintf("anchor outside sequence of length %d", len(l.slots))}
	}
	if l.consumed[pos-1] {
		return &MismatchError{Position: pos, Slot: pos, Reason: "anchor already consumed by an earlier edit"}
	}

	for i := 1; i < len(ref); i++ {
		slot := pos + int64(i)
		expected := ref[i : i+1]
		if slot > int64(len(l.slots)) {
			return &MismatchError{Position: pos, Slot: slot, Expected: expected,
				Reason: fmt.Sprintf("reference allele %q runs past sequence end at %d", ref, slot)}
		}
		if found := l.slots[slot-1]; found != expected {
			return &MismatchError{Position: pos, Slot: slot, Expected: expected, Found: found}
		}
	}
	return nil
}

// Replace applies ref -> alt at pos. Nothing is modified unless the whole
// check passes. Positions must be applied in strictly ascending order.
func (l *Ledger) Replace(pos int64, ref, alt string) error {
	if pos <= l.last {
		return fmt.Errorf("position %d after %d: %w", pos, l.last, ErrOutOfOrder)
	}
	if err := l.Check(pos, ref); err != nil {
		return err
	}

	for i := 1; i < len(ref); i++ {
		idx := pos - 1 + int64(i)
		l.slots[idx] = ""
		l.consumed[idx] = true
	}
	l.slots[pos-1] = alt
	l.consumed[pos-1] = true
	l.last = pos
	return nil
}

// String joins the slots into the edited sequence.
func (l *Ledger) String() string {
	return strings.Join(l.slots, "")
}
