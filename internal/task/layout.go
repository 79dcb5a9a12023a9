// Package task names the files that make up a pipeline task directory.
//
//	<root>/<task>/reference/<task>_ref_<n>.fasta
//	<root>/<task>/reference/<task>_ref.json
//	<root>/<task>/alignment/<aligner>/<task>_<aligner>_ref_<n>_<caller>.vcf
//	<root>/<task>/draft_genome/<task>_draft_<n>.fasta
//	<root>/<task>/draft_genome/<task>_draft_<n>.vcf
//	<root>/<task>/draft_genome/<task>_draft_summary.json
//	<root>/<task>/<task>_vc_summary.json
package task

import (
	"fmt"
	"path/filepath"
)

// Layout resolves paths inside one task directory.
type Layout struct {
	Root   string // directory holding task directories
	TaskID string
}

// FromDir builds a Layout from a task directory path; the last path
// element is the task ID.
func FromDir(dir string) Layout {
	clean := filepath.Clean(dir)
	return Layout{Root: filepath.Dir(clean), TaskID: filepath.Base(clean)}
}

// Dir returns the task directory.
func (l Layout) Dir() string {
	return filepath.Join(l.Root, l.TaskID)
}

// ReferenceDir returns the directory of split reference sequences.
func (l Layout) ReferenceDir() string {
	return filepath.Join(l.Dir(), "reference")
}

// ReferenceFASTA returns the single-sequence FASTA for a reference order.
func (l Layout) ReferenceFASTA(order int) string {
	return filepath.Join(l.ReferenceDir(), fmt.Sprintf("%s_ref_%d.fasta", l.TaskID, order))
}

// ReferenceMeta returns the reference metadata JSON path.
func (l Layout) ReferenceMeta() string {
	return filepath.Join(l.ReferenceDir(), l.TaskID+"_ref.json")
}

// CallFile returns the caller output for one (aligner, reference, caller).
func (l Layout) CallFile(aligner string, order int, caller string) string {
	return filepath.Join(l.Dir(), "alignment", aligner,
		fmt.Sprintf("%s_%s_ref_%d_%s.vcf", l.TaskID, aligner, order, caller))
}

// DraftDir returns the draft genome output directory.
func (l Layout) DraftDir() string {
	return filepath.Join(l.Dir(), "draft_genome")
}

// DraftFASTA returns the draft genome FASTA for a reference order.
func (l Layout) DraftFASTA(order int) string {
	return filepath.Join(l.DraftDir(), fmt.Sprintf("%s_draft_%d.fasta", l.TaskID, order))
}

// DraftVCF returns the per-position decision VCF for a reference order.
func (l Layout) DraftVCF(order int) string {
	return filepath.Join(l.DraftDir(), fmt.Sprintf("%s_draft_%d.vcf", l.TaskID, order))
}

// DraftHeader returns the FASTA header used for a draft sequence.
func (l Layout) DraftHeader(order int) string {
	return fmt.Sprintf("%s_draft_%d", l.TaskID, order)
}

// DraftSummary returns the draft summary JSON path.
func (l Layout) DraftSummary() string {
	return filepath.Join(l.DraftDir(), l.TaskID+"_draft_summary.json")
}

// EvidenceSummary returns the evidence summary JSON path.
func (l Layout) EvidenceSummary() string {
	return filepath.Join(l.Dir(), l.TaskID+"_vc_summary.json")
}
