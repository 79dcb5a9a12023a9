package output

import (
	"bufio"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/consensus"
	"github.com/inodb/vibe-consensus/internal/evidence"
)

// EvidenceTabWriter writes one tab-delimited row per observation together
// with the vote outcome of its position.
type EvidenceTabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewEvidenceTabWriter creates a new tab-delimited evidence writer.
func NewEvidenceTabWriter(w io.Writer) *EvidenceTabWriter {
	return &EvidenceTabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Ref_order",
			"Position",
			"Ref",
			"Alt",
			"Kind",
			"Caller",
			"Aligner",
			"Freq",
			"Qual",
			"Depth",
			"Filter",
			"Score",
			"Outcome",
		},
	}
}

// WriteHeader writes the header line.
func (tw *EvidenceTabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// WriteSet writes every observation of set in caller, position, allele and
// aligner order. ballot supplies the score and outcome columns and may be nil.
func (tw *EvidenceTabWriter) WriteSet(set evidence.Set, ballot *consensus.Ballot) error {
	for _, table := range set.Tables {
		for _, pos := range table.Positions() {
			entry, _ := table.Entry(pos)
			for _, alt := range entry.AlleleNames() {
				byAligner := entry.Alleles[alt]
				for _, aligner := range slices.Sorted(maps.Keys(byAligner)) {
					if err := tw.writeRow(set.RefOrder, table.Caller, aligner, pos, entry.Ref, alt, byAligner[aligner], ballot); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (tw *EvidenceTabWriter) writeRow(order int, caller calls.Caller, aligner string, pos int64, ref, alt string, obs evidence.Observation, ballot *consensus.Ballot) error {
	score := "-"
	outcome := "-"
	if ballot != nil {
		if tally, ok := ballot.Tallies[pos]; ok {
			score = strconv.Itoa(tally.Scores[alt])
		} else {
			score = "0"
		}
		outcome = string(ballot.Outcome(pos))
	}

	filter := obs.Filter
	if filter == "" {
		filter = "-"
	}
	freq := obs.Freq
	if freq == "" {
		freq = "-"
	}

	kind := calls.CallRecord{Ref: ref, Alt: alt}.Kind()

	values := []string{
		strconv.Itoa(order),
		strconv.FormatInt(pos, 10),
		ref,
		alt,
		kind,
		string(caller),
		aligner,
		freq,
		strconv.FormatFloat(obs.Quality, 'f', -1, 64),
		strconv.Itoa(obs.Depth),
		filter,
		score,
		outcome,
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (tw *EvidenceTabWriter) Flush() error {
	return tw.w.Flush()
}
