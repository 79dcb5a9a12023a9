package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/vibe-consensus/internal/consensus"
)

func ballotOf(calls ...consensus.DominantCall) *consensus.Ballot {
	b := &consensus.Ballot{
		Tallies: make(map[int64]*consensus.Tally),
		Calls:   make(map[int64]consensus.DominantCall),
	}
	for _, c := range calls {
		b.Calls[c.Position] = c
		b.Tallies[c.Position] = &consensus.Tally{Ref: c.Ref, Scores: map[string]int{c.Alt: c.Score}}
	}
	return b
}

func TestBuild_Identity(t *testing.T) {
	b := NewBuilder()

	for name, ballot := range map[string]*consensus.Ballot{
		"nil":   nil,
		"empty": ballotOf(),
	} {
		t.Run(name, func(t *testing.T) {
			rec := b.Build(1, "ACGTACGT", ballot)
			assert.Equal(t, "ACGTACGT", rec.Sequence)
			assert.Empty(t, rec.AppliedSNV)
			assert.Empty(t, rec.Conflicts)
			assert.Empty(t, rec.Errors)
			assert.NotNil(t, rec.AppliedSNV)
			assert.NotNil(t, rec.Conflicts)
			assert.NotNil(t, rec.Errors)
		})
	}
}

func TestBuild_SingleSubstitution(t *testing.T) {
	rec := NewBuilder().Build(1, "ACGTACGT", ballotOf(
		consensus.DominantCall{Position: 3, Ref: "G", Alt: "T", Score: 2},
	))

	assert.Equal(t, 1, rec.RefOrder)
	assert.Equal(t, "ACTTACGT", rec.Sequence)
	assert.Equal(t, []string{"G3T"}, rec.AppliedSNV)
	assert.Empty(t, rec.Conflicts)
	assert.Empty(t, rec.Errors)

	require.Len(t, rec.Decisions, 1)
	assert.Equal(t, StatusApplied, rec.Decisions[0].Status)
	assert.Equal(t, 2, rec.Decisions[0].Score)
}

func TestBuild_ConflictLeavesSequence(t *testing.T) {
	ballot := ballotOf()
	ballot.Tallies[5] = &consensus.Tally{Ref: "A", Scores: map[string]int{"C": 2, "G": 2}}
	ballot.Conflicts = []int64{5}

	rec := NewBuilder().Build(1, "ACGTACGT", ballot)
	assert.Equal(t, "ACGTACGT", rec.Sequence)
	assert.Equal(t, []int64{5}, rec.Conflicts)
	assert.Empty(t, rec.AppliedSNV)

	require.Len(t, rec.Decisions, 1)
	assert.Equal(t, StatusConflict, rec.Decisions[0].Status)
	assert.Equal(t, "A", rec.Decisions[0].Ref)
}

func TestBuild_MismatchSkipsEdit(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := NewBuilder()
	b.SetLogger(zap.New(core))

	rec := b.Build(2, "ACGTACGT", ballotOf(
		consensus.DominantCall{Position: 2, Ref: "CAT", Alt: "C", Score: 3},
		consensus.DominantCall{Position: 6, Ref: "C", Alt: "T", Score: 2},
	))

	assert.Equal(t, "ACGTATGT", rec.Sequence)
	assert.Equal(t, []int64{2}, rec.Errors)
	assert.Equal(t, []string{"C6T"}, rec.AppliedSNV)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "reference mismatch, edit skipped", entry.Message)
	assert.Equal(t, int64(2), entry.ContextMap()["position"])
	assert.Equal(t, int64(2), entry.ContextMap()["ref_order"])
}

func TestBuild_ErrorCases(t *testing.T) {
	tests := []struct {
		name string
		call consensus.DominantCall
	}{
		{"runs past end", consensus.DominantCall{Position: 7, Ref: "GTA", Alt: "G", Score: 1}},
		{"anchor out of range", consensus.DominantCall{Position: 12, Ref: "A", Alt: "C", Score: 1}},
		{"empty ref", consensus.DominantCall{Position: 4, Ref: "", Alt: "C", Score: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewBuilder().Build(1, "ACGTACGT", ballotOf(tt.call))
			assert.Equal(t, "ACGTACGT", rec.Sequence)
			assert.Equal(t, []int64{tt.call.Position}, rec.Errors)
			assert.Empty(t, rec.AppliedSNV)
			require.Len(t, rec.Decisions, 1)
			assert.Equal(t, StatusError, rec.Decisions[0].Status)
			assert.NotEmpty(t, rec.Decisions[0].Detail)
		})
	}
}

func TestBuild_IndelsKeepOriginalCoordinates(t *testing.T) {
	rec := NewBuilder().Build(1, "ACGTACGTAC", ballotOf(
		consensus.DominantCall{Position: 2, Ref: "CGT", Alt: "C", Score: 2},
		consensus.DominantCall{Position: 3, Ref: "G", Alt: "A", Score: 2},
		consensus.DominantCall{Position: 6, Ref: "C", Alt: "CTT", Score: 2},
		consensus.DominantCall{Position: 9, Ref: "A", Alt: "G", Score: 2},
	))

	assert.Equal(t, "ACACTTGTGC", rec.Sequence)
	assert.Equal(t, []string{"CGT2C", "C6CTT", "A9G"}, rec.AppliedSNV)
	assert.Equal(t, []int64{3}, rec.Errors)
}

func TestBuild_Deterministic(t *testing.T) {
	ballot := ballotOf(
		consensus.DominantCall{Position: 8, Ref: "T", Alt: "A", Score: 1},
		consensus.DominantCall{Position: 1, Ref: "A", Alt: "G", Score: 4},
		consensus.DominantCall{Position: 4, Ref: "TA", Alt: "T", Score: 2},
	)
	ballot.Conflicts = []int64{6}

	b := NewBuilder()
	first := b.Build(3, "ACGTACGT", ballot)
	for i := 0; i < 10; i++ {
		again := b.Build(3, "ACGTACGT", ballot)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "GCGTCGA", first.Sequence)
	assert.Equal(t, []string{"A1G", "TA4T", "T8A"}, first.AppliedSNV)
}

func TestFormatEdit(t *testing.T) {
	assert.Equal(t, "G3T", FormatEdit("G", 3, "T"))
	assert.Equal(t, "CGT2C", FormatEdit("CGT", 2, "C"))
}
