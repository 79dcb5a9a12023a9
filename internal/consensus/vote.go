package consensus

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/inodb/vibe-consensus/internal/evidence"
)

// Tally is the vote count of every allele seen at one position.
type Tally struct {
	Ref    string
	Scores map[string]int // allele -> vote score
}

// Qualifying returns the alleles whose score reaches minScore, sorted.
func (t *Tally) Qualifying(minScore int) []string {
	var alts []string
	for alt, score := range t.Scores {
		if score >= minScore {
			alts = append(alts, alt)
		}
	}
	sort.Strings(alts)
	return alts
}

// DominantCall is the single allele accepted at a position.
type DominantCall struct {
	Position int64
	Ref      string
	Alt      string
	Score    int
}

// Outcome describes what voting decided for a position.
type Outcome string

// Voting outcomes.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeConflict Outcome = "conflict"
	OutcomeBelowMin Outcome = "below_min_score"
	OutcomeNoVote   Outcome = "no_vote"
)

// Ballot is the voting result for one reference sequence.
type Ballot struct {
	RefOrder  int
	Tallies   map[int64]*Tally
	Calls     map[int64]DominantCall
	Conflicts []int64 // ascending
	Skipped   int     // observations with an unparsable frequency
}

// Positions returns the accepted positions in ascending order.
func (b *Ballot) Positions() []int64 {
	positions := make([]int64, 0, len(b.Calls))
	for pos := range b.Calls {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })
	return positions
}

// Outcome reports the decision taken at a position.
func (b *Ballot) Outcome(pos int64) Outcome {
	if _, ok := b.Calls[pos]; ok {
		return OutcomeAccepted
	}
	for _, c := range b.Conflicts {
		if c == pos {
			return OutcomeConflict
		}
	}
	if _, ok := b.Tallies[pos]; ok {
		return OutcomeBelowMin
	}
	return OutcomeNoVote
}

// Vote scores every observation in the set. Each (caller, aligner)
// observation whose frequency strictly exceeds cfg.VCThreshold adds one
// vote to its allele. A position with exactly one allele reaching
// cfg.MinVCScore yields a DominantCall; two or more such alleles make the
// position a conflict.
func Vote(set evidence.Set, cfg Config) *Ballot {
	b := &Ballot{
		RefOrder: set.RefOrder,
		Tallies:  make(map[int64]*Tally),
		Calls:    make(map[int64]DominantCall),
	}

	for _, table := range set.Tables {
		for _, pos := range table.Positions() {
			entry, _ := table.Entry(pos)
			for _, alt := range entry.AlleleNames() {
				for _, obs := range entry.Alleles[alt] {
					fraction, err := ParseFrequency(obs.Freq)
					if err != nil {
						b.Skipped++
						continue
					}
					if fraction <= cfg.VCThreshold {
						continue
					}
					tally, ok := b.Tallies[pos]
					if !ok {
						tally = &Tally{Ref: entry.Ref, Scores: make(map[string]int)}
						b.Tallies[pos] = tally
					}
					tally.Scores[alt]++
				}
			}
		}
	}

	positions := make([]int64, 0, len(b.Tallies))
	for pos := range b.Tallies {
		positions = append(positions, pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	for _, pos := range positions {
		tally := b.Tallies[pos]
		qualifying := tally.Qualifying(cfg.MinVCScore)
		switch {
		case len(qualifying) == 1:
			alt := qualifying[0]
			b.Calls[pos] = DominantCall{
				Position: pos,
				Ref:      tally.Ref,
				Alt:      alt,
				Score:    tally.Scores[alt],
			}
		case len(qualifying) > 1:
			b.Conflicts = append(b.Conflicts, pos)
		}
	}

	return b
}

// ParseFrequency converts a caller frequency into a 0..1 fraction.
// "85.5%" is read as a percentage; a bare number is taken as a fraction.
func ParseFrequency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse frequency %q: %w", s, err)
	}
	if percent {
		v /= 100
	}
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, fmt.Errorf("frequency %q outside [0, 1]", s)
	}
	return v, nil
}
