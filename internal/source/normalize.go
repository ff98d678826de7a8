package source

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

var typeAliases = strings.NewReplacer("Copy Number", "CN", "Genotype Fragment", "FRAG")

// NormalizeStats counts what the normalizer did during a run.
type NormalizeStats struct {
	Records      int
	Observations int
	// CopyNumberFallbacks counts copy number values outside every configured bin.
	CopyNumberFallbacks int
	// YearBinned counts records whose site received a year interval suffix.
	YearBinned int
}

// Normalizer prepares raw records for tabulation: marker type aliasing, copy
// number binning, year binning and combination expansion, in that order.
type Normalizer struct {
	CopyNumberBins []grouping.CopyNumberBin
	YearBins       *grouping.YearBins
	// Combinations are expanded in process. Leave empty when a database
	// produces the combined rows itself.
	Combinations []markers.Combination
	Logger       *zap.Logger

	stats NormalizeStats
}

// Stats returns the counters accumulated so far.
func (n *Normalizer) Stats() NormalizeStats { return n.stats }

func (n *Normalizer) log() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

// Normalize converts one record into observations.
func (n *Normalizer) Normalize(rec Record) ([]prevalence.Observation, error) {
	calls := make([]markers.Call, 0, len(rec.Calls))
	for _, c := range rec.Calls {
		c.Marker = typeAliases.Replace(c.Marker)
		if isCopyNumber(c.Marker) && !markers.IsSentinel(c.Genotype) {
			binned, err := n.binCopyNumber(rec, c)
			if err != nil {
				return nil, err
			}
			c.Genotype = binned
		}
		calls = append(calls, c)
	}

	meta := rec.Meta
	if n.YearBins != nil {
		site := n.YearBins.Assign(meta.StudyLabel, meta.Site, rec.InclusionDate)
		if site != meta.Site {
			n.stats.YearBinned++
		}
		meta.Site = site
	}

	expanded, err := markers.Expand(calls, n.Combinations)
	if err != nil {
		return nil, fmt.Errorf("patient %q: %w", rec.PatientID, err)
	}

	out := make([]prevalence.Observation, len(expanded))
	for i, c := range expanded {
		out[i] = prevalence.Observation{
			Meta:          meta,
			PatientID:     rec.PatientID,
			Age:           rec.Age,
			InclusionDate: rec.InclusionDate,
			Marker:        c.Marker,
			Genotype:      c.Genotype,
		}
	}
	n.stats.Records++
	n.stats.Observations += len(out)
	return out, nil
}

func (n *Normalizer) binCopyNumber(rec Record, c markers.Call) (string, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Genotype), 64)
	if err != nil {
		return "", fmt.Errorf("patient %q: copy number %q for %s: %w", rec.PatientID, c.Genotype, c.Marker, err)
	}
	if len(n.CopyNumberBins) == 0 {
		return grouping.BinCopyNumber(v, nil), nil
	}
	if name, ok := grouping.LookupCopyNumberBin(v, n.CopyNumberBins); ok {
		return name, nil
	}
	n.stats.CopyNumberFallbacks++
	rounded := grouping.BinCopyNumber(v, nil)
	n.log().Debug("copy number outside configured bins",
		zap.String("patient", rec.PatientID),
		zap.String("marker", c.Marker),
		zap.Float64("value", v),
		zap.String("bin", rounded))
	return rounded, nil
}

// isCopyNumber reports whether a single-locus marker carries a copy number value.
func isCopyNumber(marker string) bool {
	return !strings.Contains(marker, markers.ComboSep) && strings.Contains(marker, "CN")
}

// Stream adapts a Reader and a Normalizer into a prevalence.Source.
type Stream struct {
	r    Reader
	n    *Normalizer
	buf  []prevalence.Observation
	recs int
}

// NewStream returns a Source reading from r through n.
func NewStream(r Reader, n *Normalizer) *Stream {
	if n == nil {
		n = &Normalizer{}
	}
	return &Stream{r: r, n: n}
}

// Next returns the next observation, or io.EOF once the reader is exhausted.
func (s *Stream) Next() (prevalence.Observation, error) {
	for len(s.buf) == 0 {
		rec, err := s.r.Next()
		if errors.Is(err, io.EOF) {
			return prevalence.Observation{}, io.EOF
		}
		if err != nil {
			return prevalence.Observation{}, err
		}
		s.recs++
		obs, err := s.n.Normalize(rec)
		if err != nil {
			return prevalence.Observation{}, fmt.Errorf("record %d: %w", s.recs, err)
		}
		s.buf = obs
	}
	o := s.buf[0]
	s.buf = s.buf[1:]
	return o, nil
}
