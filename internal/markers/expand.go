package markers

import "strings"

// Call is one marker descriptor with its genotype descriptor, as found in an input record.
type Call struct {
	Marker   string
	Genotype string
}

// Expand appends a combined call for every combination whose loci are all
// present among the single-locus calls of one record. The combined marker and
// genotype follow the combination's locus order. If any component genotype is
// a sentinel, the combined genotype repeats that sentinel for every locus.
func Expand(calls []Call, combos []Combination) ([]Call, error) {
	if len(combos) == 0 {
		return calls, nil
	}
	type single struct {
		token    string
		genotype string
	}
	present := make(map[Locus]single, len(calls))
	for _, c := range calls {
		mk, gk, err := ParsePair(c.Marker, c.Genotype)
		if err != nil {
			return nil, err
		}
		if mk.IsCombination() {
			continue
		}
		if _, dup := present[mk[0]]; dup {
			continue
		}
		present[mk[0]] = single{token: strings.TrimSpace(c.Marker), genotype: gk[0]}
	}
	out := make([]Call, len(calls), len(calls)+len(combos))
	copy(out, calls)
	for _, combo := range combos {
		tokens := make([]string, 0, len(combo.Marker))
		values := make([]string, 0, len(combo.Marker))
		sentinel := ""
		complete := true
		for _, l := range combo.Marker {
			s, ok := present[l]
			if !ok {
				complete = false
				break
			}
			tokens = append(tokens, s.token)
			values = append(values, s.genotype)
			if sentinel == "" && IsSentinel(s.genotype) {
				sentinel = s.genotype
			}
		}
		if !complete {
			continue
		}
		if sentinel != "" {
			for i := range values {
				values[i] = sentinel
			}
		}
		out = append(out, Call{
			Marker:   strings.Join(tokens, ComboSep),
			Genotype: strings.Join(values, ComboSep),
		})
	}
	return out, nil
}
