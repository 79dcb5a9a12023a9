// Package vcf provides VCF file parsing functionality.
package vcf

import "strings"

// Variant represents a single data row from a VCF file.
type Variant struct {
	Chrom   string                 // Sequence name from the CHROM column
	Pos     int64                  // 1-based position
	ID      string                 // Variant identifier
	Ref     string                 // Reference allele
	Alt     string                 // Alternate allele, "." when no call was made
	Qual    float64                // Quality score
	Filter  string                 // Filter status (PASS or filter name)
	Info    map[string]interface{} // INFO field key-value pairs
	Format  string                 // FORMAT column, empty when absent
	Samples []string               // Per-sample columns following FORMAT
}

// HasAlt reports whether the row carries an alternate allele.
func (v *Variant) HasAlt() bool {
	return v.Alt != "" && v.Alt != "."
}

// InfoValue returns the string value of a key=value INFO entry.
// Flag entries and missing keys return false.
func (v *Variant) InfoValue(key string) (string, bool) {
	raw, ok := v.Info[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// SampleField returns the colon-delimited subfield at index for the given
// sample column (0 = first sample).
func (v *Variant) SampleField(sample, index int) (string, bool) {
	if sample < 0 || sample >= len(v.Samples) || index < 0 {
		return "", false
	}
	parts := strings.Split(v.Samples[sample], ":")
	if index >= len(parts) {
		return "", false
	}
	return parts[index], true
}
