package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Table is the wide view of one category: one row per site and group, one
// column per label.
type Table struct {
	Category string
	Header   []string
	Rows     [][]string
}

// Tables builds one wide table per category in marker list order. Categories
// without data at any site are omitted.
func Tables(g *Grouped) []Table {
	var out []Table
	for _, name := range g.Categories() {
		labels := g.Labels(name)
		t := Table{Category: name}
		t.Header = append([]string{"STUDY_ID", "STUDY_LABEL", "COUNTRY", "SITE", "INVESTIGATOR", "GROUP", "SAMPLE SIZE"}, labels...)
		for _, site := range g.Sites() {
			cat, ok := site.Category(name)
			if !ok {
				continue
			}
			for _, group := range g.Groups {
				row := append(site.Key.Fields(), group, strconv.Itoa(cat.SampleSize(group)))
				for _, label := range labels {
					cell, ok := cat.Cell(label, group)
					switch {
					case !ok:
						row = append(row, "")
					case cell.Sentinel:
						row = append(row, strconv.Itoa(cell.Genotyped))
					default:
						row = append(row, Percent(cell.Prevalence))
					}
				}
				t.Rows = append(t.Rows, row)
			}
		}
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	}
	return out
}

// WriteTable writes t as tab separated values.
func WriteTable(w io.Writer, t Table) error {
	cw := newTSVWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write table %s: %w", t.Category, err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write table %s: %w", t.Category, err)
	}
	return nil
}

// Preview renders the tables for a terminal.
func Preview(w io.Writer, tables []Table) {
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s\n", t.Category)
		tw := tablewriter.NewWriter(w)
		tw.SetHeader(t.Header)
		tw.SetAutoFormatHeaders(false)
		tw.AppendBulk(t.Rows)
		tw.Render()
	}
}
