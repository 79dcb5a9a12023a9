package draft

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/vibe-consensus/internal/consensus"
)

// Decision statuses recorded for every position the builder looked at.
const (
	StatusApplied  = "applied"
	StatusConflict = "conflict"
	StatusError    = "error"
)

// Decision is the audit entry of one position.
type Decision struct {
	Position int64
	Ref      string
	Alt      string
	Score    int
	Status   string
	Detail   string
}

// Record is the draft genome of one reference sequence plus its audit
// lists. The JSON form is the per-reference draft summary.
type Record struct {
	RefOrder   int        `json:"-"`
	Sequence   string     `json:"-"`
	Conflicts  []int64    `json:"conflicts"`
	AppliedSNV []string   `json:"snv_list"`
	Errors     []int64    `json:"error"`
	FilePath   string     `json:"file_path"`
	Decisions  []Decision `json:"-"`
}

// FormatEdit renders an applied edit as <ref><position><alt>.
func FormatEdit(ref string, pos int64, alt string) string {
	return fmt.Sprintf("%s%d%s", ref, pos, alt)
}

// Builder applies consensus ballots to reference sequences.
type Builder struct {
	logger *zap.Logger
}

// NewBuilder creates a builder with a no-op logger.
func NewBuilder() *Builder {
	return &Builder{logger: zap.NewNop()}
}

// SetLogger sets the logger used to report rejected edits.
func (b *Builder) SetLogger(l *zap.Logger) {
	b.logger = l
}

// Build applies the accepted calls of ballot to seq in ascending position
// order. Conflicts are copied to the record and left unedited. An edit whose
// reference allele does not fit the working sequence is skipped entirely
// and its position recorded in Errors. A nil ballot yields seq unchanged.
func (b *Builder) Build(refOrder int, seq string, ballot *consensus.Ballot) *Record {
	rec := &Record{
		RefOrder:   refOrder,
		Conflicts:  []int64{},
		AppliedSNV: []string{},
		Errors:     []int64{},
	}

	if ballot == nil {
		rec.Sequence = seq
		return rec
	}

	for _, pos := range ballot.Conflicts {
		rec.Conflicts = append(rec.Conflicts, pos)
		d := Decision{Position: pos, Status: StatusConflict}
		if tally, ok := ballot.Tallies[pos]; ok {
			d.Ref = tally.Ref
		}
		rec.Decisions = append(rec.Decisions, d)
	}

	ledger := NewLedger(seq)
	log := b.logger.With(zap.Int("ref_order", refOrder))

	for _, pos := range ballot.Positions() {
		call := ballot.Calls[pos]
		d := Decision{Position: pos, Ref: call.Ref, Alt: call.Alt, Score: call.Score}

		if err := ledger.Replace(pos, call.Ref, call.Alt); err != nil {
			log.Warn("reference mismatch, edit skipped",
				zap.Int64("position", pos),
				zap.String("ref", call.Ref),
				zap.String("alt", call.Alt),
				zap.Error(err))
			rec.Errors = append(rec.Errors, pos)
			d.Status = StatusError
			d.Detail = err.Error()
			rec.Decisions = append(rec.Decisions, d)
			continue
		}

		rec.AppliedSNV = append(rec.AppliedSNV, FormatEdit(call.Ref, pos, call.Alt))
		d.Status = StatusApplied
		rec.Decisions = append(rec.Decisions, d)
	}

	rec.Sequence = ledger.String()

	log.Debug("draft built",
		zap.Int("applied", len(rec.AppliedSNV)),
		zap.Int("conflicts", len(rec.Conflicts)),
		zap.Int("errors", len(rec.Errors)))

	return rec
}
