package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-consensus/internal/calls"
	"github.com/inodb/vibe-consensus/internal/consensus"
	"github.com/inodb/vibe-consensus/internal/draft"
	"github.com/inodb/vibe-consensus/internal/duckdb"
	"github.com/inodb/vibe-consensus/internal/evidence"
	"github.com/inodb/vibe-consensus/internal/output"
	"github.com/inodb/vibe-consensus/internal/reference"
)

// RefResult is the outcome of one reference order.
type RefResult struct {
	RefOrder int
	Header   string // reference FASTA header
	Set      evidence.Set
	Ballot   *consensus.Ballot
	Record   *draft.Record
	Err      error
}

// Result summarizes a run. Failed references are absent from Records and
// Sets and keep the error that stopped them.
type Result struct {
	RunID   string // empty without a store
	RefNum  int
	Records map[int]*draft.Record
	Sets    map[int]evidence.Set
	Failed  map[int]error
}

// FailedOrders returns the failed reference orders, ascending.
func (res *Result) FailedOrders() []int {
	orders := make([]int, 0, len(res.Failed))
	for o := range res.Failed {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	return orders
}

// pathSource is implemented by sources backed by files.
type pathSource interface {
	Path(refOrder int, caller calls.Caller, aligner string) string
}

// Runner executes the consensus workflow for one task.
type Runner struct {
	cfg     Config
	source  evidence.Source
	builder *draft.Builder
	logger  *zap.Logger
	store   *duckdb.Store
}

// NewRunner creates a runner reading evidence from src.
func NewRunner(cfg Config, src evidence.Source) *Runner {
	return &Runner{
		cfg:     cfg,
		source:  src,
		builder: draft.NewBuilder(),
		logger:  zap.NewNop(),
	}
}

// SetLogger sets the logger for the runner and its draft builder.
func (r *Runner) SetLogger(l *zap.Logger) {
	r.logger = l
	r.builder.SetLogger(l)
}

// SetStore enables provenance recording.
func (r *Runner) SetStore(s *duckdb.Store) {
	r.store = s
}

// Run processes every reference order. A failing reference is recorded in
// Result.Failed and does not stop the others. The returned error covers
// configuration, report and store failures only; with a store, a run that
// stops on one of them is marked aborted.
func (r *Runner) Run(ctx context.Context) (_ *Result, err error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	refNum, err := r.refCount()
	if err != nil {
		return nil, err
	}

	layout := r.cfg.Layout
	log := r.logger.With(zap.String("task", layout.TaskID))
	log.Info("consensus run started",
		zap.Int("references", refNum),
		zap.Float64("vc_threshold", r.cfg.Consensus.VCThreshold),
		zap.Int("min_vc_score", r.cfg.Consensus.MinVCScore))

	res := &Result{
		RefNum:  refNum,
		Records: make(map[int]*draft.Record),
		Sets:    make(map[int]evidence.Set),
		Failed:  make(map[int]error),
	}

	if r.store != nil {
		run := duckdb.NewRun(layout.TaskID, r.cfg.Consensus.VCThreshold, r.cfg.Consensus.MinVCScore, refNum)
		if err := r.store.BeginRun(ctx, run); err != nil {
			return nil, err
		}
		res.RunID = run.ID
		defer func() {
			if err != nil {
				r.abortRun(ctx, res, err)
			}
		}()
	}

	tsv, closeTSV, err := r.openEvidenceTSV()
	if err != nil {
		return nil, err
	}
	defer closeTSV()

	qctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := r.parallelBuild(qctx, queue(qctx, refNum), r.cfg.Workers)
	err = OrderedCollect(results, func(wr WorkResult) error {
		if err := r.collect(ctx, res, wr.RefResult, tsv); err != nil {
			cancel()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if tsv != nil {
		if err := tsv.Flush(); err != nil {
			return nil, fmt.Errorf("write evidence report: %w", err)
		}
	}

	if err := r.writeSummaries(res); err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.WriteInputs(ctx, res.RunID, r.inputs(res)); err != nil {
			return nil, err
		}
		if err := r.store.FinishRun(ctx, res.RunID, len(res.Failed)); err != nil {
			return nil, err
		}
	}

	log.Info("consensus run finished",
		zap.Int("built", len(res.Records)),
		zap.Int("failed", len(res.Failed)))

	return res, nil
}

// abortRun closes the run row after a failure. ctx may already be
// canceled, so the update runs without its cancellation.
func (r *Runner) abortRun(ctx context.Context, res *Result, cause error) {
	if err := r.store.AbortRun(context.WithoutCancel(ctx), res.RunID, len(res.Failed)); err != nil {
		r.logger.Error("cannot mark run aborted",
			zap.String("run_id", res.RunID),
			zap.Error(err))
		return
	}
	r.logger.Warn("run aborted",
		zap.String("run_id", res.RunID),
		zap.Error(cause))
}

// processReference runs load, aggregate, vote, build and write for one order.
func (r *Runner) processReference(ctx context.Context, order int) RefResult {
	res := RefResult{RefOrder: order}
	layout := r.cfg.Layout

	seq, err := reference.LoadReference(layout.ReferenceFASTA(order))
	if err != nil {
		res.Err = fmt.Errorf("load reference %d: %w", order, err)
		return res
	}
	res.Header = seq.Header

	set, err := evidence.Aggregate(ctx, r.source, order, r.cfg.Callers, r.cfg.Aligners)
	if err != nil {
		res.Err = err
		return res
	}
	res.Set = set

	res.Ballot = consensus.Vote(set, r.cfg.Consensus)
	if res.Ballot.Skipped > 0 {
		r.logger.Warn("observations with unparsable frequency ignored",
			zap.Int("ref_order", order),
			zap.Int("skipped", res.Ballot.Skipped))
	}

	rec := r.builder.Build(order, seq.Bases, res.Ballot)
	rec.FilePath = layout.DraftFASTA(order)
	res.Record = rec

	if err := output.WriteFASTAFile(rec.FilePath, layout.DraftHeader(order), rec.Sequence); err != nil {
		res.Err = err
		return res
	}
	if err := writeDecisionVCF(layout.DraftVCF(order), contig(seq.Header), rec); err != nil {
		r.removeDraft(rec.FilePath, layout.DraftVCF(order))
		res.Err = err
		return res
	}
	return res
}

// removeDraft deletes the regular files among paths so that a failed
// reference leaves no draft behind.
func (r *Runner) removeDraft(paths ...string) {
	for _, path := range paths {
		fi, err := os.Lstat(path)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("cannot remove draft output", zap.String("path", path), zap.Error(err))
		}
	}
}

// collect folds one reference into the run result, in reference order.
func (r *Runner) collect(ctx context.Context, res *Result, ref RefResult, tsv *output.EvidenceTabWriter) error {
	if ref.Err != nil {
		res.Failed[ref.RefOrder] = ref.Err
		r.logger.Error("reference failed",
			zap.Int("ref_order", ref.RefOrder),
			zap.Error(ref.Err))
		return nil
	}

	res.Records[ref.RefOrder] = ref.Record
	res.Sets[ref.RefOrder] = ref.Set

	r.logger.Info("draft built",
		zap.Int("ref_order", ref.RefOrder),
		zap.String("header", ref.Header),
		zap.Int("applied", len(ref.Record.AppliedSNV)),
		zap.Int("conflicts", len(ref.Record.Conflicts)),
		zap.Int("errors", len(ref.Record.Errors)))

	if tsv != nil {
		if err := tsv.WriteSet(ref.Set, ref.Ballot); err != nil {
			return fmt.Errorf("write evidence report: %w", err)
		}
	}

	if r.store != nil {
		taskID := r.cfg.Layout.TaskID
		if err := r.store.WriteObservations(ctx, res.RunID, taskID, ref.Set); err != nil {
			return err
		}
		if err := r.store.WriteDecisions(ctx, res.RunID, taskID, ref.Record); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) refCount() (int, error) {
	if r.cfg.RefNum > 0 {
		return r.cfg.RefNum, nil
	}
	meta, err := reference.ReadMeta(r.cfg.Layout.ReferenceMeta())
	if err != nil {
		return 0, err
	}
	if meta.RefNum < 1 {
		return 0, fmt.Errorf("reference metadata lists no sequences")
	}
	return meta.RefNum, nil
}

func (r *Runner) openEvidenceTSV() (*output.EvidenceTabWriter, func(), error) {
	if r.cfg.EvidenceTSV == "" {
		return nil, func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(r.cfg.EvidenceTSV), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(r.cfg.EvidenceTSV)
	if err != nil {
		return nil, nil, fmt.Errorf("create evidence report: %w", err)
	}
	tw := output.NewEvidenceTabWriter(f)
	if err := tw.WriteHeader(); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write evidence report: %w", err)
	}
	return tw, func() { f.Close() }, nil
}

func (r *Runner) writeSummaries(res *Result) error {
	layout := r.cfg.Layout
	err := output.WriteFile(layout.DraftSummary(), func(w io.Writer) error {
		return output.WriteDraftSummary(w, res.Records)
	})
	if err != nil {
		return err
	}
	return output.WriteFile(layout.EvidenceSummary(), func(w io.Writer) error {
		return output.WriteEvidenceSummary(w, res.Sets)
	})
}

// inputs fingerprints the call files of every built reference.
func (r *Runner) inputs(res *Result) []duckdb.Input {
	ps, ok := r.source.(pathSource)
	if !ok {
		return nil
	}

	orders := make([]int, 0, len(res.Records))
	for o := range res.Records {
		orders = append(orders, o)
	}
	sort.Ints(orders)

	var inputs []duckdb.Input
	for _, order := range orders {
		for _, caller := range r.cfg.Callers {
			for _, aligner := range r.cfg.Aligners {
				fp, err := duckdb.StatFile(ps.Path(order, caller, aligner))
				if err != nil {
					r.logger.Warn("cannot fingerprint call file", zap.Error(err))
					continue
				}
				inputs = append(inputs, duckdb.Input{
					RefOrder:        order,
					Caller:          string(caller),
					Aligner:         aligner,
					FileFingerprint: fp,
				})
			}
		}
	}
	return inputs
}

func writeDecisionVCF(path, chrom string, rec *draft.Record) error {
	return output.WriteFile(path, func(w io.Writer) error {
		vw := output.NewDecisionVCFWriter(w, chrom)
		if err := vw.WriteHeader(); err != nil {
			return err
		}
		if err := vw.WriteRecord(rec); err != nil {
			return err
		}
		return vw.Flush()
	})
}

// contig returns the sequence name of a FASTA header.
func contig(header string) string {
	if fields := strings.Fields(header); len(fields) > 0 {
		return fields[0]
	}
	return header
}
