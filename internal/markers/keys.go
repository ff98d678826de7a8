package markers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ComboSep joins the loci of a combination marker and the matching genotype values.
const ComboSep = " + "

// Sentinel genotype values. They are tallied under their own key but never
// count toward a sample size.
const (
	NotGenotyped      = "Not genotyped"
	GenotypingFailure = "Genotyping failure"
)

// ErrArityMismatch is returned when a genotype does not carry one value per marker locus.
var ErrArityMismatch = errors.New("genotype arity does not match marker")

// ParseError describes a marker or genotype string that could not be parsed.
type ParseError struct {
	Input string
	Msg   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse marker %q: %s", e.Input, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Locus is one (locus name, locus position) pair. Position is empty for
// non-positional marker types (copy number, fragment length).
type Locus struct {
	Name     string
	Position string
}

func (l Locus) String() string {
	if l.Position == "" {
		return l.Name
	}
	return l.Name + "_" + l.Position
}

// MarkerKey is the ordered list of loci a marker covers. Single markers have
// one locus, combination markers two or more.
type MarkerKey []Locus

// String renders the key in declaration order, e.g. "pfdhps_540 + pfdhps_437".
func (k MarkerKey) String() string {
	parts := make([]string, len(k))
	for i, l := range k {
		parts[i] = l.String()
	}
	return strings.Join(parts, ComboSep)
}

// SetKey renders the key independent of locus order. Two keys covering the
// same loci share a SetKey.
func (k MarkerKey) SetKey() string {
	parts := make([]string, len(k))
	for i, l := range k {
		parts[i] = l.Name + "\x00" + l.Position
	}
	sort.Strings(parts)
	return strings.Join(parts, "\x01")
}

// IsCombination reports whether the key spans more than one locus.
func (k MarkerKey) IsCombination() bool { return len(k) > 1 }

// GenotypeKey holds one genotype value per locus of the paired MarkerKey.
type GenotypeKey []string

func (g GenotypeKey) String() string { return strings.Join(g, ComboSep) }

// IsSentinel reports whether the primary value is a sentinel.
func (g GenotypeKey) IsSentinel() bool {
	return len(g) > 0 && IsSentinel(g[0])
}

// IsSentinel reports whether v is "Not genotyped" or "Genotyping failure", ignoring case.
func IsSentinel(v string) bool {
	v = strings.TrimSpace(v)
	return strings.EqualFold(v, NotGenotyped) || strings.EqualFold(v, GenotypingFailure)
}

// IsNonPositional reports whether a single marker token names a copy number
// or fragment marker, which carry no locus position.
func IsNonPositional(token string) bool {
	return strings.Contains(token, "CN") || strings.Contains(token, "FRAG")
}

// ParseMarker parses a raw marker descriptor. Each " + " separated token has
// the form locusName_locusPosition_markerType[_moleculeType]; copy number and
// fragment tokens drop the position.
func ParseMarker(raw string) (MarkerKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Input: raw, Msg: "empty marker"}
	}
	tokens := strings.Split(raw, ComboSep)
	key := make(MarkerKey, 0, len(tokens))
	for _, tok := range tokens {
		l, err := parseToken(strings.TrimSpace(tok))
		if err != nil {
			return nil, &ParseError{Input: raw, Msg: err.Error()}
		}
		key = append(key, l)
	}
	return key, nil
}

func parseToken(tok string) (Locus, error) {
	fields := strings.Split(tok, "_")
	if IsNonPositional(tok) {
		if len(fields) < 2 || len(fields) > 4 {
			return Locus{}, fmt.Errorf("token %q: want 2-4 fields, got %d", tok, len(fields))
		}
		if fields[0] == "" {
			return Locus{}, fmt.Errorf("token %q: empty locus name", tok)
		}
		return Locus{Name: fields[0]}, nil
	}
	if len(fields) < 3 || len(fields) > 4 {
		return Locus{}, fmt.Errorf("token %q: want 3-4 fields, got %d", tok, len(fields))
	}
	if fields[0] == "" || fields[1] == "" {
		return Locus{}, fmt.Errorf("token %q: empty locus name or position", tok)
	}
	return Locus{Name: fields[0], Position: fields[1]}, nil
}

// ParseGenotype splits a raw genotype descriptor on " + ".
func ParseGenotype(raw string) (GenotypeKey, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &ParseError{Input: raw, Msg: "empty genotype"}
	}
	parts := strings.Split(raw, ComboSep)
	g := make(GenotypeKey, len(parts))
	for i, p := range parts {
		g[i] = strings.TrimSpace(p)
	}
	return g, nil
}

// ParsePair parses a marker and its genotype and checks that they have the same arity.
func ParsePair(marker, genotype string) (MarkerKey, GenotypeKey, error) {
	mk, err := ParseMarker(marker)
	if err != nil {
		return nil, nil, err
	}
	gk, err := ParseGenotype(genotype)
	if err != nil {
		return nil, nil, err
	}
	if len(mk) != len(gk) {
		return nil, nil, &ParseError{
			Input: marker,
			Msg:   fmt.Sprintf("%d loci but genotype %q has %d values", len(mk), genotype, len(gk)),
			Err:   ErrArityMismatch,
		}
	}
	return mk, gk, nil
}

// Reorder permutes g, which is positionally aligned with from, so that it is
// aligned with to. from and to must cover the same loci.
func Reorder(from MarkerKey, g GenotypeKey, to MarkerKey) (GenotypeKey, bool) {
	if len(from) != len(g) || len(from) != len(to) {
		return nil, false
	}
	idx := make(map[Locus]int, len(from))
	for i, l := range from {
		idx[l] = i
	}
	out := make(GenotypeKey, len(to))
	for i, l := range to {
		j, ok := idx[l]
		if !ok {
			return nil, false
		}
		out[i] = g[j]
	}
	return out, true
}
