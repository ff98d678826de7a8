package grouping

import (
	"fmt"
	"math"
	"time"
)

const year = 365 * 24 * time.Hour

// MaxYearStep is the widest interval, in years, a time.Duration can hold.
const MaxYearStep = int(math.MaxInt64 / int64(year))

// SiteKey identifies the (study label, site) pair year bins are built for.
type SiteKey struct {
	StudyLabel string
	Site       string
}

// DateRange is the observed span of inclusion dates.
type DateRange struct {
	Min time.Time
	Max time.Time
}

// DateRanges accumulates the observed inclusion date span per site.
type DateRanges map[SiteKey]DateRange

// Observe widens the range of the site to include d. Zero dates are ignored.
func (r DateRanges) Observe(studyLabel, site string, d time.Time) {
	if d.IsZero() {
		return
	}
	k := SiteKey{StudyLabel: studyLabel, Site: site}
	cur, ok := r[k]
	if !ok {
		r[k] = DateRange{Min: d, Max: d}
		return
	}
	if d.Before(cur.Min) {
		cur.Min = d
	}
	if d.After(cur.Max) {
		cur.Max = d
	}
	r[k] = cur
}

// YearInterval is a half-open interval [Start, End).
type YearInterval struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls in [Start, End).
func (i YearInterval) Contains(d time.Time) bool {
	return !d.Before(i.Start) && d.Before(i.End)
}

// Suffix is the label appended to a site name for dates in the interval.
func (i YearInterval) Suffix() string {
	return fmt.Sprintf("_%d-%d", i.Start.Year(), i.End.Year())
}

// YearBins holds precomputed contiguous year intervals per site. It is built
// once before tabulation and only read afterwards.
type YearBins struct {
	step int
	bins map[SiteKey][]YearInterval
}

// NewYearBins splits every observed range into intervals of step*365 days,
// starting at the observed minimum and covering the maximum.
func NewYearBins(step int, ranges DateRanges) (*YearBins, error) {
	if step <= 0 || step > MaxYearStep {
		return nil, &ConfigError{Msg: fmt.Sprintf("year step must be between 1 and %d, got %d", MaxYearStep, step)}
	}
	width := time.Duration(step) * year
	yb := &YearBins{step: step, bins: make(map[SiteKey][]YearInterval, len(ranges))}
	for k, r := range ranges {
		var out []YearInterval
		for start := r.Min; !start.After(r.Max); {
			end := start.Add(width)
			out = append(out, YearInterval{Start: start, End: end})
			if !end.After(start) {
				break
			}
			start = end
		}
		yb.bins[k] = out
	}
	return yb, nil
}

// Step returns the interval width in years.
func (b *YearBins) Step() int { return b.step }

// Intervals returns the intervals built for a site.
func (b *YearBins) Intervals(studyLabel, site string) []YearInterval {
	return b.bins[SiteKey{StudyLabel: studyLabel, Site: site}]
}

// Assign returns site with the suffix of the interval containing d. The site
// is returned unchanged when no interval matches.
func (b *YearBins) Assign(studyLabel, site string, d time.Time) string {
	if b == nil || d.IsZero() {
		return site
	}
	for _, iv := range b.bins[SiteKey{StudyLabel: studyLabel, Site: site}] {
		if iv.Contains(d) {
			return site + iv.Suffix()
		}
	}
	return site
}
