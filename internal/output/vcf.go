package output

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/inodb/vibe-consensus/internal/draft"
)

// Header lines describing the decision INFO and FILTER fields.
var decisionHeader = []string{
	"##fileformat=VCFv4.2",
	"##source=vibe-consensus",
	`##INFO=<ID=SCORE,Number=1,Type=Integer,Description="Consensus vote score of the allele">`,
	`##INFO=<ID=STATUS,Number=1,Type=String,Description="Draft decision: applied, conflict or error">`,
	`##FILTER=<ID=conflict,Description="Two or more alleles reached the minimum vote score">`,
	`##FILTER=<ID=ref_mismatch,Description="Reference allele did not match the working sequence">`,
}

// DecisionVCFWriter writes the per-position draft decisions of a reference
// as VCF rows on a single contig.
type DecisionVCFWriter struct {
	w     *bufio.Writer
	chrom string
}

// NewDecisionVCFWriter creates a VCF writer whose rows use chrom as contig.
func NewDecisionVCFWriter(w io.Writer, chrom string) *DecisionVCFWriter {
	if chrom == "" {
		chrom = "."
	}
	return &DecisionVCFWriter{w: bufio.NewWriter(w), chrom: chrom}
}

// WriteHeader writes the meta lines and the #CHROM column line.
func (vw *DecisionVCFWriter) WriteHeader() error {
	for _, line := range decisionHeader {
		if _, err := vw.w.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	_, err := vw.w.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n")
	return err
}

// WriteRecord writes every decision of rec in ascending position order.
func (vw *DecisionVCFWriter) WriteRecord(rec *draft.Record) error {
	decisions := make([]draft.Decision, len(rec.Decisions))
	copy(decisions, rec.Decisions)
	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Position < decisions[j].Position
	})

	for _, d := range decisions {
		if err := vw.writeDecision(d); err != nil {
			return err
		}
	}
	return nil
}

func (vw *DecisionVCFWriter) writeDecision(d draft.Decision) error {
	var lb strings.Builder
	lb.Grow(64)

	ref := d.Ref
	if ref == "" {
		ref = "."
	}
	alt := d.Alt
	if alt == "" {
		alt = "."
	}

	filter := "PASS"
	switch d.Status {
	case draft.StatusConflict:
		filter = "conflict"
	case draft.StatusError:
		filter = "ref_mismatch"
	}

	lb.WriteString(vw.chrom)
	lb.WriteByte('\t')
	lb.WriteString(strconv.FormatInt(d.Position, 10))
	lb.WriteString("\t.\t")
	lb.WriteString(ref)
	lb.WriteByte('\t')
	lb.WriteString(alt)
	lb.WriteString("\t.\t")
	lb.WriteString(filter)
	lb.WriteString("\tSCORE=")
	lb.WriteString(strconv.Itoa(d.Score))
	lb.WriteString(";STATUS=")
	lb.WriteString(d.Status)
	lb.WriteByte('\n')

	_, err := vw.w.WriteString(lb.String())
	return err
}

// Flush flushes any buffered data to the underlying writer.
func (vw *DecisionVCFWriter) Flush() error {
	return vw.w.Flush()
}
