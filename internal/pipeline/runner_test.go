package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/draft"
	"github.com/inodb/vibe-consensus/internal/duckdb"
	"github.com/inodb/vibe-consensus/internal/evidence"
	"github.com/inodb/vibe-consensus/internal/task"
)

// writeReferences writes one single-sequence FASTA per order.
func writeReferences(t *testing.T, layout task.Layout, seqs ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(layout.ReferenceDir(), 0o755))
	for i, seq := range seqs {
		order := i + 1
		content := fmt.Sprintf(">ref%d test sequence\n%s\n", order, seq)
		require.NoError(t, os.WriteFile(layout.ReferenceFASTA(order), []byte(content), 0o644))
	}
}

func rec(pos int64, ref, alt, freq string) calls.CallRecord {
	return calls.CallRecord{Position: pos, Ref: ref, Alt: alt, Filter: "PASS", Freq: freq, Quality: 50, Depth: 100}
}

// twoReferenceSource has complete evidence for reference 1 and a missing
// varscan/bowtie2 stream for reference 2.
func twoReferenceSource() evidence.StaticSource {
	return evidence.StaticSource{
		{RefOrder: 1, Caller: calls.LoFreq, Aligner: "bwa"}:      {rec(3, "G", "T", "80.00%"), rec(5, "A", "C", "80.00%")},
		{RefOrder: 1, Caller: calls.LoFreq, Aligner: "bowtie2"}:  {rec(3, "G", "T", "75.00%"), rec(5, "A", "G", "90.00%")},
		{RefOrder: 1, Caller: calls.VarScan, Aligner: "bwa"}:     {rec(3, "G", "T", "60%")},
		{RefOrder: 1, Caller: calls.VarScan, Aligner: "bowtie2"}: {rec(3, "G", "T", "90%")},
		{RefOrder: 2, Caller: calls.LoFreq, Aligner: "bwa"}:      {rec(1, "T", "A", "99.00%")},
		{RefOrder: 2, Caller: calls.LoFreq, Aligner: "bowtie2"}:  {},
		{RefOrder: 2, Caller: calls.VarScan, Aligner: "bwa"}:     {},
	}
}

func newTestConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig(task.Layout{Root: t.TempDir(), TaskID: "T1"})
	cfg.Workers = 2
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 2
	writeReferences(t, cfg.Layout, "ACGTACGT", "TTTTGGGG")

	core, logs := observer.New(zapcore.InfoLevel)
	r := NewRunner(cfg, twoReferenceSource())
	r.SetLogger(zap.New(core))

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, res.Records, 1)
	got := res.Records[1]
	assert.Equal(t, "ACTTACGT", got.Sequence)
	assert.Equal(t, []string{"G3T"}, got.AppliedSNV)
	assert.Equal(t, []int64{5}, got.Conflicts)
	assert.Empty(t, got.Errors)
	assert.Equal(t, cfg.Layout.DraftFASTA(1), got.FilePath)

	assert.Equal(t, []int{2}, res.FailedOrders())
	var missing *evidence.MissingInputError
	require.True(t, errors.As(res.Failed[2], &missing))
	assert.Equal(t, calls.VarScan, missing.Caller)
	assert.Equal(t, "bowtie2", missing.Aligner)
	assert.NotContains(t, res.Records, 2)

	fasta, err := os.ReadFile(cfg.Layout.DraftFASTA(1))
	require.NoError(t, err)
	assert.Equal(t, ">T1_draft_1\nACTTACGT\n", string(fasta))
	_, err = os.Stat(cfg.Layout.DraftFASTA(2))
	assert.ErrorIs(t, err, os.ErrNotExist)

	vcfOut, err := os.ReadFile(cfg.Layout.DraftVCF(1))
	require.NoError(t, err)
	assert.Contains(t, string(vcfOut), "ref1\t3\t.\tG\tT\t.\tPASS\tSCORE=3;STATUS=applied")
	assert.Contains(t, string(vcfOut), "ref1\t5\t.\tA\t.\t.\tconflict")

	summary, err := os.ReadFile(cfg.Layout.DraftSummary())
	require.NoError(t, err)
	assert.JSONEq(t, `{"1": {
		"conflicts": [5],
		"snv_list": ["G3T"],
		"error": [],
		"file_path": "`+cfg.Layout.DraftFASTA(1)+`"
	}}`, string(summary))

	vc, err := os.ReadFile(cfg.Layout.EvidenceSummary())
	require.NoError(t, err)
	assert.Contains(t, string(vc), `"lofreq":{"1":{"3":{"REF":"G"`)

	assert.Equal(t, 1, logs.FilterMessage("reference failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("draft built").Len())
}

func TestRun_Deterministic(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 2
	writeReferences(t, cfg.Layout, "ACGTACGT", "TTTTGGGG")

	first, err := NewRunner(cfg, twoReferenceSource()).Run(context.Background())
	require.NoError(t, err)

	for _, workers := range []int{1, 4, 8} {
		cfg.Workers = workers
		again, err := NewRunner(cfg, twoReferenceSource()).Run(context.Background())
		require.NoError(t, err)
		if diff := cmp.Diff(first.Records, again.Records); diff != "" {
			t.Errorf("records differ with %d workers (-first +again):\n%s", workers, diff)
		}
		assert.Equal(t, first.FailedOrders(), again.FailedOrders())
	}
}

func TestRun_RefCountFromMetadata(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	writeReferences(t, cfg.Layout, "ACGTACGT")
	meta := `{"ref_from_user":"Yes","seq_meta":{"1":{"fasta_header":"ref1","fasta_header_escape":"ref1","seq_length":"8"}},"spades_mode":"N/A","origin_file_path":"in.fasta","ref_num":"1"}`
	require.NoError(t, os.WriteFile(cfg.Layout.ReferenceMeta(), []byte(meta), 0o644))

	src := twoReferenceSource()
	res, err := NewRunner(cfg, src).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RefNum)
	assert.Len(t, res.Records, 1)
	assert.Empty(t, res.Failed)
}

func TestRun_MissingMetadata(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := NewRunner(cfg, evidence.StaticSource{}).Run(context.Background())
	assert.ErrorContains(t, err, "read reference metadata")
}

func TestRun_MissingReferenceFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 1

	res, err := NewRunner(cfg, twoReferenceSource()).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, res.Failed, 1)
	assert.ErrorContains(t, res.Failed[1], "load reference 1")

	summary, err := os.ReadFile(cfg.Layout.DraftSummary())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(summary))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Consensus.MinVCScore = 0
	_, err := NewRunner(cfg, evidence.StaticSource{}).Run(context.Background())
	assert.ErrorContains(t, err, "invalid config")
}

func TestRun_Canceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 2
	writeReferences(t, cfg.Layout, "ACGTACGT", "TTTTGGGG")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(cfg, twoReferenceSource()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_WithStoreAndEvidenceTSV(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 2
	cfg.EvidenceTSV = filepath.Join(cfg.Layout.Dir(), "evidence.tsv")
	writeReferences(t, cfg.Layout, "ACGTACGT", "TTTTGGGG")

	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	r := NewRunner(cfg, twoReferenceSource())
	r.SetStore(store)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	ctx := context.Background()
	runs, err := store.Runs(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 2, runs[0].RefNum)

	report, err := store.LookupPosition(ctx, "T1", 1, 3)
	require.NoError(t, err)
	assert.Len(t, report.Observations, 4)
	require.Len(t, report.Decisions, 1)
	assert.Equal(t, draft.StatusApplied, report.Decisions[0].Status)
	assert.Equal(t, 3, report.Decisions[0].Score)

	conflicts, err := store.Decisions(ctx, "T1", 1, draft.StatusConflict)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, int64(5), conflicts[0].Position)

	// static sources have no files to fingerprint
	inputs, err := store.Inputs(ctx, res.RunID)
	require.NoError(t, err)
	assert.Empty(t, inputs)

	tsv, err := os.ReadFile(cfg.EvidenceTSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(tsv)), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "#Ref_order"))
	assert.Len(t, lines, 7)
}

func TestRun_SummaryFailureAbortsStoredRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 1
	writeReferences(t, cfg.Layout, "ACGTACGT")

	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	first := NewRunner(cfg, twoReferenceSource())
	first.SetStore(store)
	good, err := first.Run(ctx)
	require.NoError(t, err)

	// a directory where the evidence summary goes makes the report write fail
	require.NoError(t, os.Remove(cfg.Layout.EvidenceSummary()))
	require.NoError(t, os.MkdirAll(cfg.Layout.EvidenceSummary(), 0o755))

	second := NewRunner(cfg, twoReferenceSource())
	second.SetStore(store)
	_, err = second.Run(ctx)
	require.Error(t, err)

	runs, err := store.Runs(ctx, "T1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := map[string]string{runs[0].ID: runs[0].Status, runs[1].ID: runs[1].Status}
	assert.Equal(t, duckdb.RunFinished, statuses[good.RunID])
	for id, status := range statuses {
		if id != good.RunID {
			assert.Equal(t, duckdb.RunAborted, status)
		}
	}

	latest, err := store.LatestRun(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, good.RunID, latest)

	applied, err := store.Decisions(ctx, "T1", 1, draft.StatusApplied)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, good.RunID, applied[0].RunID)
}

// cancelingSource cancels the run as soon as evidence is requested.
type cancelingSource struct {
	evidence.StaticSource
	cancel context.CancelFunc
}

func (s cancelingSource) Load(ctx context.Context, refOrder int, caller calls.Caller, aligner string) ([]calls.CallRecord, error) {
	s.cancel()
	return s.StaticSource.Load(ctx, refOrder, caller, aligner)
}

func TestRun_CanceledStoredRunIsAborted(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 2
	writeReferences(t, cfg.Layout, "ACGTACGT", "TTTTGGGG")

	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRunner(cfg, cancelingSource{StaticSource: twoReferenceSource(), cancel: cancel})
	r.SetStore(store)
	_, err = r.Run(ctx)
	require.Error(t, err)

	runs, err := store.Runs(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, duckdb.RunAborted, runs[0].Status)

	latest, err := store.LatestRun(context.Background(), "T1")
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestRun_DecisionVCFFailureRemovesDraft(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 1
	writeReferences(t, cfg.Layout, "ACGTACGT")

	// a directory where the decision VCF goes makes that write fail
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Layout.DraftVCF(1), "x"), 0o755))

	res, err := NewRunner(cfg, twoReferenceSource()).Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, res.Failed, 1)
	assert.Empty(t, res.Records)

	_, err = os.Stat(cfg.Layout.DraftFASTA(1))
	assert.ErrorIs(t, err, os.ErrNotExist)
	fi, err := os.Stat(cfg.Layout.DraftVCF(1))
	require.NoError(t, err)
	assert.True(t, fi.IsDir(), "directories in the way are left alone")
}

const lofreqHeader = "##fileformat=VCFv4.0\n##source=lofreq call\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"

const varscanHeader = "##fileformat=VCFv4.1\n##source=VarScan2\n#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSample1\n"

func varscanRow(pos int, ref, alt, freq string) string {
	return "ref1\t" + strconv.Itoa(pos) + "\t.\t" + ref + "\t" + alt + "\t.\tPASS\tADP=98;WT=0;HET=0;HOM=1;NC=0\t" +
		"GT:GQ:SDP:DP:RD:AD:FREQ:PVAL:RBQ:ABQ:RDF:RDR:ADF:ADR\t1/1:255:100:98:1:97:" + freq + ":1.2E-56:37:38:0:1:50:47\n"
}

func lofreqRow(pos int, ref, alt, af string) string {
	return "ref1\t" + strconv.Itoa(pos) + "\t.\t" + ref + "\t" + alt + "\t500\tPASS\tDP=100;AF=" + af + ";SB=0;DP4=0,0,50,35\n"
}

func TestRun_FileSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := newTestConfig(t)
	cfg.RefNum = 1
	writeReferences(t, cfg.Layout, "ACGTACGT")

	files := map[string]string{
		cfg.Layout.CallFile("bwa", 1, "lofreq"):      lofreqHeader + lofreqRow(3, "G", "T", "0.850000") + lofreqRow(6, "C", "A", "0.050000"),
		cfg.Layout.CallFile("bowtie2", 1, "lofreq"):  lofreqHeader + lofreqRow(3, "G", "T", "0.810000"),
		cfg.Layout.CallFile("bwa", 1, "varscan"):     varscanHeader + varscanRow(3, "G", "T", "98.98%") + varscanRow(7, "G", ".", "0%"),
		cfg.Layout.CallFile("bowtie2", 1, "varscan"): varscanHeader + "ref1\t3\tbroken\n" + varscanRow(3, "G", "T", "97.5%"),
	}
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core)
	normalizer := calls.NewNormalizer()
	normalizer.SetLogger(logger)

	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	r := NewRunner(cfg, evidence.NewFileSource(cfg.Layout, normalizer))
	r.SetLogger(logger)
	r.SetStore(store)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Failed)

	got := res.Records[1]
	assert.Equal(t, "ACTTACGT", got.Sequence)
	assert.Equal(t, []string{"G3T"}, got.AppliedSNV)

	lofreq := res.Sets[1].Table(calls.LoFreq)
	require.NotNil(t, lofreq)
	_, ok := lofreq.Entry(6)
	assert.False(t, ok, "low AF lofreq call kept")

	assert.Equal(t, 1, logs.FilterMessage("skipping malformed call row").Len())

	inputs, err := store.Inputs(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Len(t, inputs, 4)
}
