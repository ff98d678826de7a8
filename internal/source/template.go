package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
)

// Template header names of the metadata columns.
const (
	ColStudyID      = "STUDY_ID"
	ColStudyLabel   = "STUDY_LABEL"
	ColInvestigator = "INVESTIGATOR"
	ColCountry      = "COUNTRY"
	ColSite         = "SITE"
	ColPatientID    = "PATIENT_ID"
	ColAge          = "AGE"
	ColInclusion    = "DATE_OF_INCLUSION"
	ColSampleDate   = "SAMPLE_COLLECTION_DATE"
)

var metadataCols = []string{ColStudyID, ColStudyLabel, ColInvestigator, ColCountry, ColSite, ColPatientID, ColAge, ColInclusion}

// ignoredCols are recognised but unused; they are never read as markers
// wherever they appear.
var ignoredCols = []string{ColSampleDate}

func isTemplateColumn(name string) bool {
	for _, m := range metadataCols {
		if name == m {
			return true
		}
	}
	for _, m := range ignoredCols {
		if name == m {
			return true
		}
	}
	return false
}

// TemplateOptions controls how a template file is read.
type TemplateOptions struct {
	// MarkerStart is the zero based index of the first marker column. Zero
	// picks the column after the last metadata column.
	MarkerStart int
}

// TemplateReader reads a tab separated template file with one subject per row.
// Columns after the metadata block hold marker descriptors in the header and
// genotypes in the cells.
type TemplateReader struct {
	f       io.Closer
	r       *csv.Reader
	cols    map[string]int
	markers []string
	start   int
	row     int
}

// OpenTemplate opens a template file from disk.
func OpenTemplate(path string, opt TemplateOptions) (*TemplateReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	tr, err := NewTemplateReader(f, opt)
	if err != nil {
		f.Close()
		return nil, err
	}
	tr.f = f
	return tr, nil
}

// NewTemplateReader reads the header from r and prepares record iteration.
func NewTemplateReader(r io.Reader, opt TemplateOptions) (*TemplateReader, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read template header: empty file")
		}
		return nil, fmt.Errorf("read template header: %w", err)
	}
	tr := &TemplateReader{r: cr, cols: map[string]int{}, row: 1}
	last := -1
	for i, h := range header {
		name := strings.ToUpper(strings.TrimSpace(h))
		for _, m := range metadataCols {
			if name == m {
				if _, dup := tr.cols[name]; !dup {
					tr.cols[name] = i
				}
				if i > last {
					last = i
				}
			}
		}
	}
	tr.start = last + 1
	if opt.MarkerStart > 0 {
		tr.start = opt.MarkerStart
	}
	if tr.start >= len(header) {
		return nil, fmt.Errorf("read template header: no marker columns at or after index %d", tr.start)
	}
	tr.markers = make([]string, len(header)-tr.start)
	for i := range tr.markers {
		h := strings.TrimSpace(header[tr.start+i])
		if isTemplateColumn(strings.ToUpper(h)) {
			continue
		}
		tr.markers[i] = h
	}
	if len(tr.Markers()) == 0 {
		return nil, fmt.Errorf("read template header: no marker columns at or after index %d", tr.start)
	}
	return tr, nil
}

// Markers returns the marker descriptors found in the header.
func (t *TemplateReader) Markers() []string {
	var out []string
	for _, m := range t.markers {
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (t *TemplateReader) cell(rec []string, name string) string {
	i, ok := t.cols[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Next returns the next subject row. Empty marker cells are skipped.
func (t *TemplateReader) Next() (Record, error) {
	for {
		rec, err := t.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("read row %d: %w", t.row+1, err)
		}
		t.row++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		out := Record{PatientID: t.cell(rec, ColPatientID)}
		out.Meta.StudyID = t.cell(rec, ColStudyID)
		out.Meta.StudyLabel = t.cell(rec, ColStudyLabel)
		out.Meta.Investigator = t.cell(rec, ColInvestigator)
		out.Meta.Country = t.cell(rec, ColCountry)
		out.Meta.Site = t.cell(rec, ColSite)
		age, err := parseAge(t.cell(rec, ColAge))
		if err != nil {
			return Record{}, fmt.Errorf("read row %d: age: %w", t.row, err)
		}
		out.Age = age
		if d := t.cell(rec, ColInclusion); !missing(d) {
			ts, ok := parseTimeMaybe(d)
			if !ok {
				return Record{}, fmt.Errorf("read row %d: unrecognised inclusion date %q", t.row, d)
			}
			out.InclusionDate = ts
		}
		for i, m := range t.markers {
			j := t.start + i
			if j >= len(rec) {
				break
			}
			v := strings.TrimSpace(rec[j])
			if v == "" || m == "" {
				continue
			}
			out.Calls = append(out.Calls, markers.Call{Marker: m, Genotype: v})
		}
		return out, nil
	}
}

// Close releases the underlying file, if any.
func (t *TemplateReader) Close() error {
	if t.f == nil {
		return nil
	}
	return t.f.Close()
}

// ScanDateRanges reads the template once and records the inclusion date span
// of every (study label, site) pair.
func ScanDateRanges(path string, opt TemplateOptions) (grouping.DateRanges, error) {
	tr, err := OpenTemplate(path, opt)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return CollectDateRanges(tr)
}

// CollectDateRanges drains r and returns the observed inclusion date spans.
// It does not close r.
func CollectDateRanges(r Reader) (grouping.DateRanges, error) {
	ranges := grouping.DateRanges{}
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return ranges, nil
		}
		if err != nil {
			return nil, err
		}
		ranges.Observe(rec.Meta.StudyLabel, rec.Meta.Site, rec.InclusionDate)
	}
}
