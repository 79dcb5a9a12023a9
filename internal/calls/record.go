// Package calls normalizes variant caller output into per-position call records.
package calls

import (
	"fmt"
	"strings"
)

// Caller identifies a variant-calling algorithm and selects its output dialect.
type Caller string

// Supported callers.
const (
	// LoFreq reports allele frequency and depth as INFO key=value pairs.
	LoFreq Caller = "lofreq"
	// VarScan reports quality, depth and frequency in the sample column.
	VarScan Caller = "varscan"
)

// DefaultCallers is the caller set run by the pipeline.
var DefaultCallers = []Caller{LoFreq, VarScan}

// ParseCaller converts a caller name into a Caller.
func ParseCaller(name string) (Caller, error) {
	switch c := Caller(strings.ToLower(strings.TrimSpace(name))); c {
	case LoFreq, VarScan:
		return c, nil
	default:
		return "", fmt.Errorf("unknown caller %q", name)
	}
}

// ParseCallers converts a list of caller names, rejecting duplicates.
func ParseCallers(names []string) ([]Caller, error) {
	seen := make(map[Caller]bool, len(names))
	callers := make([]Caller, 0, len(names))
	for _, n := range names {
		c, err := ParseCaller(n)
		if err != nil {
			return nil, err
		}
		if seen[c] {
			return nil, fmt.Errorf("duplicate caller %q", n)
		}
		seen[c] = true
		callers = append(callers, c)
	}
	return callers, nil
}

// CallRecord is one normalized row of caller output for a single
// (reference, caller, aligner) combination.
type CallRecord struct {
	Position int64   // 1-based anchor position
	Ref      string  // Reference allele, one or more bases
	Alt      string  // Alternate allele
	Filter   string  // Filter status
	Freq     string  // Allele frequency as a percentage string, e.g. "85.71%"
	Quality  float64 // Caller quality
	Depth    int     // Read depth at the position
}

// Kind classifies the edit described by the record.
func (r CallRecord) Kind() string {
	switch {
	case len(r.Ref) == 1 && len(r.Alt) == 1:
		return "SNV"
	case len(r.Ref) == len(r.Alt):
		return "MNV"
	case len(r.Alt) > len(r.Ref):
		return "INS"
	default:
		return "DEL"
	}
}
