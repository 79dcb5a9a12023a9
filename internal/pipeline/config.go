// Package pipeline runs the consensus workflow over every reference of a
// task: aggregate evidence, vote, build the draft and write the reports.
package pipeline

import (
	"fmt"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/consensus"
	"github.com/inodb/vibe-consensus/internal/task"
)

// DefaultAligners is the aligner set whose call files are read.
var DefaultAligners = []string{"bwa", "bowtie2"}

// Config is the immutable configuration of one run.
type Config struct {
	Layout    task.Layout
	Callers   []calls.Caller
	Aligners  []string
	RefNum    int // 0 reads the count from the reference metadata
	Consensus consensus.Config
	Workers   int // 0 uses runtime.NumCPU()

	// EvidenceTSV, when set, receives the per-observation report.
	EvidenceTSV string
}

// DefaultConfig returns a configuration for the task at layout.
func DefaultConfig(layout task.Layout) Config {
	return Config{
		Layout:    layout,
		Callers:   append([]calls.Caller(nil), calls.DefaultCallers...),
		Aligners:  append([]string(nil), DefaultAligners...),
		Consensus: consensus.DefaultConfig(),
	}
}

// Validate checks the configuration before a run.
func (c Config) Validate() error {
	if c.Layout.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	if len(c.Callers) == 0 {
		return fmt.Errorf("at least one caller is required")
	}
	if len(c.Aligners) == 0 {
		return fmt.Errorf("at least one aligner is required")
	}
	seen := make(map[string]bool, len(c.Aligners))
	for _, a := range c.Aligners {
		if a == "" {
			return fmt.Errorf("empty aligner name")
		}
		if seen[a] {
			return fmt.Errorf("duplicate aligner %q", a)
		}
		seen[a] = true
	}
	if c.RefNum < 0 {
		return fmt.Errorf("reference count %d must not be negative", c.RefNum)
	}
	return c.Consensus.Validate()
}
