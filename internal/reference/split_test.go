package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-consensus/internal/task"
)

func TestSplit(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "input.fasta")
	require.NoError(t, os.WriteFile(src, []byte(twoRecords), 0o644))

	layout := task.Layout{Root: root, TaskID: "T1"}
	meta, err := Split(src, layout)
	require.NoError(t, err)

	assert.Equal(t, 2, meta.RefNum)
	assert.Equal(t, src, meta.OriginFilePath)
	assert.Equal(t, "seg2&#124;HA", meta.SeqMeta[2].FASTAHeaderEscape)
	assert.Equal(t, 8, meta.SeqMeta[2].SeqLength)

	seq, err := LoadReference(layout.ReferenceFASTA(2))
	require.NoError(t, err)
	assert.Equal(t, Sequence{Header: "seg2|HA", Bases: "ACGTACGT"}, seq)

	raw, err := os.ReadFile(layout.ReferenceMeta())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ref_num":"2"`)
	assert.Contains(t, string(raw), `"seq_length":"45"`)

	back, err := ReadMeta(layout.ReferenceMeta())
	require.NoError(t, err)
	assert.Equal(t, meta, back)
}

func TestSplit_LongSequenceWrapped(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "long.fasta")
	bases := strings.Repeat("ACGT", 50)
	require.NoError(t, os.WriteFile(src, []byte(">long\n"+bases+"\n"), 0o644))

	layout := task.Layout{Root: root, TaskID: "T2"}
	_, err := Split(src, layout)
	require.NoError(t, err)

	raw, err := os.ReadFile(layout.ReferenceFASTA(1))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 4)
	assert.Len(t, lines[1], 80)
}

func TestSplit_Empty(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "empty.fasta")
	require.NoError(t, os.WriteFile(src, []byte("\n"), 0o644))

	_, err := Split(src, task.Layout{Root: root, TaskID: "T3"})
	assert.ErrorContains(t, err, "no sequence found")
}

func TestReadMeta_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := ReadMeta(path)
	assert.ErrorContains(t, err, "parse reference metadata")
}
