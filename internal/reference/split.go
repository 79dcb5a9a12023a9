package reference

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inodb/vibe-consensus/internal/output"
	"github.com/inodb/vibe-consensus/internal/task"
)

// Meta describes the split reference of a task. Counts are stored as
// strings to stay readable by existing report tooling.
type Meta struct {
	RefFromUser    string          `json:"ref_from_user"`
	SeqMeta        map[int]SeqMeta `json:"seq_meta"`
	SpadesMode     string          `json:"spades_mode"`
	OriginFilePath string          `json:"origin_file_path"`
	RefNum         int             `json:"ref_num,string"`
}

// SeqMeta describes one reference order.
type SeqMeta struct {
	FASTAHeader       string `json:"fasta_header"`
	FASTAHeaderEscape string `json:"fasta_header_escape"`
	SeqLength         int    `json:"seq_length,string"`
}

// EscapeHeader makes a FASTA header safe for table cells.
func EscapeHeader(header string) string {
	return strings.ReplaceAll(header, "|", "&#124;")
}

// Split writes each record of the multi-FASTA at src to its own
// reference file, numbered from 1 in file order, and writes the metadata
// file of the task.
func Split(src string, layout task.Layout) (*Meta, error) {
	seqs, err := ReadFASTA(src)
	if err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return nil, fmt.Errorf("reference %s: no sequence found", src)
	}

	meta := &Meta{
		RefFromUser:    "Yes",
		SeqMeta:        make(map[int]SeqMeta, len(seqs)),
		SpadesMode:     "N/A",
		OriginFilePath: src,
		RefNum:         len(seqs),
	}

	for i, seq := range seqs {
		order := i + 1
		if err := output.WriteFASTAFile(layout.ReferenceFASTA(order), seq.Header, seq.Bases); err != nil {
			return nil, err
		}
		meta.SeqMeta[order] = SeqMeta{
			FASTAHeader:       seq.Header,
			FASTAHeaderEscape: EscapeHeader(seq.Header),
			SeqLength:         len(seq.Bases),
		}
	}

	err = output.WriteFile(layout.ReferenceMeta(), func(w io.Writer) error {
		return json.NewEncoder(w).Encode(meta)
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// ReadMeta reads a reference metadata file.
func ReadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse reference metadata %s: %w", path, err)
	}
	return &meta, nil
}
