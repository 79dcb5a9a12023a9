// Package reference reads reference sequences and prepares the per-order
// reference files of a task.
package reference

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Sequence is one FASTA record.
type Sequence struct {
	Header string // header line without the leading '>'
	Bases  string
}

// ReadFASTA reads every record of a FASTA file. Gzip input is detected
// from its magic bytes.
func ReadFASTA(path string) ([]Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var reader io.Reader = br

	// Check for gzip magic number (0x1f, 0x8b)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	seqs, err := ParseFASTA(reader)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return seqs, nil
}

// ParseFASTA parses FASTA content in file order. Lines before the first
// header and records with an empty header are ignored; blank lines and
// trailing whitespace inside a sequence are dropped.
func ParseFASTA(r io.Reader) ([]Sequence, error) {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for unwrapped genomes
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 64*1024*1024)

	var seqs []Sequence
	var current *Sequence
	var bases strings.Builder

	flush := func() {
		if current != nil {
			current.Bases = bases.String()
			seqs = append(seqs, *current)
		}
		current = nil
		bases.Reset()
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")

		if strings.HasPrefix(line, ">") {
			flush()
			header := strings.TrimSpace(line[1:])
			if header != "" {
				current = &Sequence{Header: header}
			}
			continue
		}

		if current != nil {
			bases.WriteString(strings.TrimSpace(line))
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan FASTA: %w", err)
	}
	return seqs, nil
}

// LoadReference reads the single reference sequence of one order.
func LoadReference(path string) (Sequence, error) {
	seqs, err := ReadFASTA(path)
	if err != nil {
		return Sequence{}, err
	}
	switch len(seqs) {
	case 1:
		return seqs[0], nil
	case 0:
		return Sequence{}, fmt.Errorf("reference %s: no sequence found", path)
	default:
		return Sequence{}, fmt.Errorf("reference %s: expected 1 sequence, found %d", path, len(seqs))
	}
}
