package calls

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/inodb/vibe-consensus/internal/vcf"
)

// MinLoFreqAF is the allele frequency below which LoFreq calls are dropped.
const MinLoFreqAF = 0.1

// VarScan sample subfield offsets (GT:GQ:SDP:DP:RD:AD:FREQ:PVAL...).
const (
	varscanQualField  = 1
	varscanDepthField = 2
	varscanFreqField  = 6
)

// Normalizer converts caller output into CallRecords.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer creates a normalizer with a no-op logger.
func NewNormalizer() *Normalizer {
	return &Normalizer{logger: zap.NewNop()}
}

// SetLogger sets the logger used to report skipped rows.
func (n *Normalizer) SetLogger(l *zap.Logger) {
	n.logger = l
}

// NormalizeFile parses the caller output at path.
func (n *Normalizer) NormalizeFile(path string, caller Caller) ([]CallRecord, error) {
	p, err := vcf.NewParser(path)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	return n.normalize(p, caller, zap.String("path", path))
}

// Normalize parses caller output from r.
func (n *Normalizer) Normalize(r io.Reader, caller Caller) ([]CallRecord, error) {
	p, err := vcf.NewParserFromReader(r)
	if err != nil {
		return nil, err
	}
	return n.normalize(p, caller)
}

// NormalizeParser drains an already opened parser.
func (n *Normalizer) NormalizeParser(p vcf.VariantParser, caller Caller) ([]CallRecord, error) {
	return n.normalize(p, caller)
}

func (n *Normalizer) normalize(p vcf.VariantParser, caller Caller, fields ...zap.Field) ([]CallRecord, error) {
	var convert func(*vcf.Variant) (CallRecord, bool, error)
	switch caller {
	case LoFreq:
		convert = fromLoFreq
	case VarScan:
		convert = fromVarScan
	default:
		return nil, fmt.Errorf("unknown caller %q", caller)
	}

	log := n.logger.With(append(fields, zap.String("caller", string(caller)))...)

	var records []CallRecord
	skipped := 0
	for {
		v, err := p.Next()
		if err != nil {
			var perr *vcf.ParseError
			if errors.As(err, &perr) {
				skipped++
				log.Warn("skipping malformed call row", zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("read %s calls: %w", caller, err)
		}
		if v == nil {
			break
		}

		rec, keep, err := convert(v)
		if err != nil {
			skipped++
			log.Warn("skipping malformed call row",
				zap.Int("line", p.LineNumber()),
				zap.Error(err))
			continue
		}
		if keep {
			records = append(records, rec)
		}
	}

	log.Debug("normalized calls",
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped))

	return records, nil
}

// fromVarScan converts a frequency-style row. Rows without an alternate
// allele are dropped; frequency is already a percentage string.
func fromVarScan(v *vcf.Variant) (CallRecord, bool, error) {
	if !v.HasAlt() {
		return CallRecord{}, false, nil
	}

	gq, ok := v.SampleField(0, varscanQualField)
	if !ok {
		return CallRecord{}, false, fmt.Errorf("position %d: missing GQ subfield", v.Pos)
	}
	sdp, ok := v.SampleField(0, varscanDepthField)
	if !ok {
		return CallRecord{}, false, fmt.Errorf("position %d: missing SDP subfield", v.Pos)
	}
	freq, ok := v.SampleField(0, varscanFreqField)
	if !ok {
		return CallRecord{}, false, fmt.Errorf("position %d: missing FREQ subfield", v.Pos)
	}

	qual, err := strconv.ParseFloat(gq, 64)
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("position %d: invalid GQ %q", v.Pos, gq)
	}
	depth, err := strconv.Atoi(sdp)
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("position %d: invalid SDP %q", v.Pos, sdp)
	}

	return CallRecord{
		Position: v.Pos,
		Ref:      v.Ref,
		Alt:      v.Alt,
		Filter:   v.Filter,
		Freq:     freq,
		Quality:  qual,
		Depth:    depth,
	}, true, nil
}

// fromLoFreq converts a Bayesian-style row. Rows below MinLoFreqAF are
// dropped; AF is rendered as a two-decimal percentage string.
func fromLoFreq(v *vcf.Variant) (CallRecord, bool, error) {
	rawAF, ok := v.InfoValue("AF")
	if !ok {
		return CallRecord{}, false, fmt.Errorf("position %d: missing AF", v.Pos)
	}
	af, err := strconv.ParseFloat(rawAF, 64)
	if err != nil {
		return CallRecord{}, false, fmt.Errorf("position %d: invalid AF %q", v.Pos, rawAF)
	}
	if math.IsNaN(af) || math.IsInf(af, 0) {
		return CallRecord{}, false, fmt.Errorf("position %d: invalid AF %q", v.Pos, rawAF)
	}
	if af < MinLoFreqAF {
		return CallRecord{}, false, nil
	}

	depth := 0
	if rawDP, ok := v.InfoValue("DP"); ok {
		depth, err = strconv.Atoi(rawDP)
		if err != nil {
			return CallRecord{}, false, fmt.Errorf("position %d: invalid DP %q", v.Pos, rawDP)
		}
	}

	return CallRecord{
		Position: v.Pos,
		Ref:      v.Ref,
		Alt:      v.Alt,
		Filter:   v.Filter,
		Freq:     FormatPercent(af),
		Quality:  v.Qual,
		Depth:    depth,
	}, true, nil
}

// FormatPercent renders a 0..1 fraction as a two-decimal percentage.
func FormatPercent(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', 2, 64) + "%"
}
