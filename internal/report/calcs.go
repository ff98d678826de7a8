package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CalcsHeader is the header of the long format .calcs files.
var CalcsHeader = []string{
	"STUDY_ID", "STUDY_LABEL", "COUNTRY", "SITE", "INVESTIGATOR",
	"GROUP", "MARKER", "GENOTYPE", "SAMPLE SIZE", "PREVALENCE",
	"PREVALENCE RAW", "GENOTYPED",
}

// Percent formats a prevalence ratio with one decimal, e.g. "45.0%".
func Percent(p float64) string { return fmt.Sprintf("%.1f%%", p*100) }

func newTSVWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return cw
}

// WriteCalcs writes one row per (site, category, label, group) for the
// requested groups. Sentinel labels have empty prevalence columns.
func WriteCalcs(w io.Writer, g *Grouped, groups []string) error {
	cw := newTSVWriter(w)
	if err := cw.Write(CalcsHeader); err != nil {
		return fmt.Errorf("write calcs header: %w", err)
	}
	for _, site := range g.Sites() {
		meta := site.Key.Fields()
		for _, cat := range site.Categories(g) {
			for _, label := range g.Labels(cat.Name) {
				for _, group := range groups {
					cell, ok := cat.Cell(label, group)
					if !ok {
						continue
					}
					prev, raw := "", ""
					if !cell.Sentinel {
						prev = Percent(cell.Prevalence)
						raw = strconv.FormatFloat(cell.Prevalence, 'f', -1, 64)
					}
					row := append(append([]string(nil), meta...),
						group, cat.Name, label,
						strconv.Itoa(cat.SampleSize(group)), prev, raw,
						strconv.Itoa(cell.Genotyped))
					if err := cw.Write(row); err != nil {
						return fmt.Errorf("write calcs row: %w", err)
					}
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
