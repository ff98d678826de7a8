// Package grouping assigns continuous values (ages, copy numbers, inclusion
// dates) to the discrete bins used to stratify prevalence statistics.
package grouping

import (
	"fmt"
	"math"
	"strconv"
)

// ConfigError reports a malformed age group or copy number bin definition.
type ConfigError struct {
	File string
	Line int
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.File == "" {
		return "invalid group configuration: " + e.Msg
	}
	return fmt.Sprintf("invalid group configuration %s:%d: %s", e.File, e.Line, e.Msg)
}

// Range is an interval with at most one open end. A nil Lower matches values
// strictly below Upper, a nil Upper matches values strictly above Lower, and a
// closed range matches Lower <= v <= Upper.
type Range struct {
	Lower *float64
	Upper *float64
}

// Contains applies the bound test.
func (r Range) Contains(v float64) bool {
	switch {
	case r.Lower == nil && r.Upper == nil:
		return false
	case r.Lower == nil:
		return v < *r.Upper
	case r.Upper == nil:
		return v > *r.Lower
	default:
		return *r.Lower <= v && v <= *r.Upper
	}
}

func (r Range) validate() error {
	if r.Lower == nil && r.Upper == nil {
		return fmt.Errorf("lower and upper bounds cannot both be None")
	}
	return nil
}

// AgeGroup is a labelled age range.
type AgeGroup struct {
	Range
	Label string
}

// NewAgeGroup builds an age group, rejecting one with both bounds open.
func NewAgeGroup(lower, upper *float64, label string) (AgeGroup, error) {
	g := AgeGroup{Range: Range{Lower: lower, Upper: upper}, Label: label}
	if err := g.validate(); err != nil {
		return AgeGroup{}, &ConfigError{Msg: fmt.Sprintf("age group %q: %v", label, err)}
	}
	return g, nil
}

// Labels returns the group labels in declaration order.
func Labels(groups []AgeGroup) []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.Label
	}
	return out
}

// AssignAgeGroup returns the label of the first group containing age. It
// reports false when age is absent or falls outside every group.
func AssignAgeGroup(groups []AgeGroup, age *float64) (string, bool) {
	if age == nil {
		return "", false
	}
	for _, g := range groups {
		if g.Contains(*age) {
			return g.Label, true
		}
	}
	return "", false
}

// CopyNumberBin names a copy number range.
type CopyNumberBin struct {
	Name string
	Range
}

// NewCopyNumberBin builds a bin, rejecting one with both bounds open.
func NewCopyNumberBin(name string, lower, upper *float64) (CopyNumberBin, error) {
	b := CopyNumberBin{Name: name, Range: Range{Lower: lower, Upper: upper}}
	if err := b.validate(); err != nil {
		return CopyNumberBin{}, &ConfigError{Msg: fmt.Sprintf("copy number group %q: %v", name, err)}
	}
	return b, nil
}

// LookupCopyNumberBin returns the name of the first bin containing v.
func LookupCopyNumberBin(v float64, bins []CopyNumberBin) (string, bool) {
	for _, b := range bins {
		if b.Contains(v) {
			return b.Name, true
		}
	}
	return "", false
}

// BinCopyNumber returns the bin name for v, or v rounded to the nearest
// integer when no bin matches.
func BinCopyNumber(v float64, bins []CopyNumberBin) string {
	if name, ok := LookupCopyNumberBin(v, bins); ok {
		return name
	}
	return strconv.Itoa(int(math.Round(v)))
}

// Float returns a pointer to v, for building ranges in code.
func Float(v float64) *float64 { return &v }
