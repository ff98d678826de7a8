package markers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GenotypeInfo is one reportable genotype of a marker and where it is grouped in output.
type GenotypeInfo struct {
	Genotype GenotypeKey
	Category string
	Label    string
}

// Entry describes a marker listed in the marker list together with its valid genotypes.
type Entry struct {
	Marker MarkerKey
	Type   string
	Valid  []GenotypeInfo
}

// Combination is a multi-locus marker reported jointly.
type Combination struct {
	Marker MarkerKey
	// Procedure is an optional stored procedure producing the combined rows.
	Procedure string
	Genotypes []GenotypeKey
}

// List is a parsed marker list file.
type List struct {
	entries      map[string]*Entry
	order        []string
	categories   []string
	labels       map[string][]string
	Combinations []Combination
}

var procedureName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// LoadList reads a marker list from disk.
func LoadList(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open marker list: %w", err)
	}
	defer f.Close()
	return ParseList(f, filepath.Base(path))
}

// ParseList parses a tab separated marker list:
//
//	#LOCUS_NAME	LOCUS_POSITION	TYPE	GENOTYPE	CATEGORY	LABEL	PROCEDURE
//	pfdhps	436	SNP	C	pfdhps 436	Pure
//	pfdhps,pfdhps	437,540	SNP	G,E	dhps double	Mutant	dhps_double
//
// Names, positions and genotypes are comma separated for combination markers.
// CATEGORY defaults to the marker name and LABEL to the genotype.
func ParseList(r io.Reader, name string) (*List, error) {
	l := &List{entries: map[string]*Entry{}, labels: map[string][]string{}}
	combos := map[string]int{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimRight(sc.Text(), "\r\n")
		if strings.HasPrefix(raw, "#") || strings.TrimSpace(raw) == "" {
			continue
		}
		cols := strings.Split(raw, "\t")
		if len(cols) < 4 || len(cols) > 7 {
			return nil, &ParseError{Input: raw, Msg: fmt.Sprintf("%s:%d: want 4-7 columns, got %d", name, line, len(cols))}
		}
		for len(cols) < 7 {
			cols = append(cols, "")
		}
		names := splitComma(cols[0])
		positions := splitComma(cols[1])
		mtype := strings.TrimSpace(cols[2])
		genotypes := splitComma(cols[3])
		if len(names) != len(positions) || len(names) != len(genotypes) {
			return nil, &ParseError{
				Input: raw,
				Msg:   fmt.Sprintf("%s:%d: %d names, %d positions, %d genotypes", name, line, len(names), len(positions), len(genotypes)),
				Err:   ErrArityMismatch,
			}
		}
		key := make(MarkerKey, len(names))
		for i := range names {
			if names[i] == "" {
				return nil, &ParseError{Input: raw, Msg: fmt.Sprintf("%s:%d: empty locus name", name, line)}
			}
			pos := positions[i]
			if strings.EqualFold(pos, "None") || IsNonPositional(mtype) {
				pos = ""
			}
			key[i] = Locus{Name: names[i], Position: pos}
		}
		geno := GenotypeKey(genotypes)
		category := strings.TrimSpace(cols[4])
		if category == "" {
			category = key.String()
		}
		label := strings.TrimSpace(cols[5])
		if label == "" {
			label = geno.String()
		}
		l.add(key, mtype, GenotypeInfo{Genotype: geno, Category: category, Label: label})

		proc := strings.TrimSpace(cols[6])
		if proc != "" && !procedureName.MatchString(proc) {
			return nil, &ParseError{Input: raw, Msg: fmt.Sprintf("%s:%d: invalid procedure name %q", name, line, proc)}
		}
		if key.IsCombination() {
			sk := key.SetKey()
			idx, ok := combos[sk]
			if !ok {
				idx = len(l.Combinations)
				combos[sk] = idx
				l.Combinations = append(l.Combinations, Combination{Marker: key})
			}
			c := &l.Combinations[idx]
			if aligned, ok := Reorder(key, geno, c.Marker); ok {
				c.Genotypes = append(c.Genotypes, aligned)
			}
			if c.Procedure == "" {
				c.Procedure = proc
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read marker list: %w", err)
	}
	return l, nil
}

func (l *List) add(key MarkerKey, mtype string, info GenotypeInfo) {
	sk := key.SetKey()
	e, ok := l.entries[sk]
	if !ok {
		e = &Entry{Marker: key, Type: mtype}
		l.entries[sk] = e
		l.order = append(l.order, sk)
	}
	if aligned, ok := Reorder(key, info.Genotype, e.Marker); ok {
		info.Genotype = aligned
	}
	e.Valid = append(e.Valid, info)
	if _, seen := l.labels[info.Category]; !seen {
		l.categories = append(l.categories, info.Category)
	}
	for _, lb := range l.labels[info.Category] {
		if lb == info.Label {
			return
		}
	}
	l.labels[info.Category] = append(l.labels[info.Category], info.Label)
}

// Lookup finds the entry covering the same loci as key, in any order.
func (l *List) Lookup(key MarkerKey) (*Entry, bool) {
	e, ok := l.entries[key.SetKey()]
	return e, ok
}

// Entries returns the listed markers in declaration order.
func (l *List) Entries() []*Entry {
	out := make([]*Entry, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.entries[k])
	}
	return out
}

// Categories returns output categories in declaration order.
func (l *List) Categories() []string { return append([]string(nil), l.categories...) }

// Labels returns the labels of a category in declaration order.
func (l *List) Labels(category string) []string {
	return append([]string(nil), l.labels[category]...)
}

func splitComma(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
