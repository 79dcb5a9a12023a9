// Package consensus scores allele evidence across callers and aligners and
// selects one dominant call per position.
package consensus

import (
	"fmt"
	"math"
)

// Default voting parameters.
const (
	DefaultVCThreshold = 0.7
	DefaultMinVCScore  = 1
)

// Config holds the voting parameters. It is a plain value and is never
// mutated once a run starts.
type Config struct {
	// VCThreshold is the allele fraction an observation must exceed to vote.
	VCThreshold float64
	// MinVCScore is the vote count an allele needs to be accepted.
	MinVCScore int
}

// DefaultConfig returns the default voting parameters.
func DefaultConfig() Config {
	return Config{VCThreshold: DefaultVCThreshold, MinVCScore: DefaultMinVCScore}
}

// Validate checks the parameter ranges.
func (c Config) Validate() error {
	if math.IsNaN(c.VCThreshold) || c.VCThreshold < 0 || c.VCThreshold > 1 {
		return fmt.Errorf("vc threshold %v outside [0, 1]", c.VCThreshold)
	}
	if c.MinVCScore < 1 {
		return fmt.Errorf("min vc score %d must be at least 1", c.MinVCScore)
	}
	return nil
}
