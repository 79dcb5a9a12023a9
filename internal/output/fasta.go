// Package output writes draft genomes and their provenance reports.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FASTALineWidth is the number of bases written per sequence line.
const FASTALineWidth = 80

// FASTAWriter writes sequences in FASTA format.
type FASTAWriter struct {
	w     *bufio.Writer
	width int
}

// NewFASTAWriter creates a FASTA writer wrapping sequences at FASTALineWidth.
func NewFASTAWriter(w io.Writer) *FASTAWriter {
	return &FASTAWriter{w: bufio.NewWriter(w), width: FASTALineWidth}
}

// Write writes one record. An empty sequence produces the header line only.
func (fw *FASTAWriter) Write(header, seq string) error {
	if _, err := fmt.Fprintf(fw.w, ">%s\n", header); err != nil {
		return err
	}
	for start := 0; start < len(seq); start += fw.width {
		end := min(start+fw.width, len(seq))
		if _, err := fw.w.WriteString(seq[start:end]); err != nil {
			return err
		}
		if err := fw.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (fw *FASTAWriter) Flush() error {
	return fw.w.Flush()
}

// WriteFASTAFile writes a single-record FASTA file, creating parent
// directories as needed.
func WriteFASTAFile(path, header, seq string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create fasta file: %w", err)
	}

	fw := NewFASTAWriter(f)
	if err := fw.Write(header, seq); err != nil {
		f.Close()
		return fmt.Errorf("write fasta %s: %w", path, err)
	}
	if err := fw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write fasta %s: %w", path, err)
	}
	return f.Close()
}
