package prevalence

import (
	"errors"
	"fmt"
	"io"

	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
)

// Source yields observations one at a time and returns io.EOF when exhausted.
type Source interface {
	Next() (Observation, error)
}

// Tally summarises one tabulation pass.
type Tally struct {
	Observations int
	// Sentinels counts observations whose genotype is a sentinel value.
	Sentinels int
	// AgeMissing counts observations without an age while age groups are configured.
	AgeMissing int
	// AgeUnmatched counts observations whose age falls outside every group.
	AgeUnmatched int
}

// Tabulate drains src into s in a single forward pass. With age groups, each
// observation is also counted under its matching group label; every group
// label is present on every touched key even when nothing matched it.
// A malformed marker or genotype aborts the pass.
func Tabulate(s *Store, src Source, ageGroups []grouping.AgeGroup) (Tally, error) {
	var t Tally
	s.declare(grouping.Labels(ageGroups))
	for {
		o, err := src.Next()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return t, err
		}
		mk, gk, err := markers.ParsePair(o.Marker, o.Genotype)
		if err != nil {
			return t, fmt.Errorf("observation %d (patient %q): %w", t.Observations+1, o.PatientID, err)
		}
		label := ""
		if len(ageGroups) > 0 {
			var ok bool
			label, ok = grouping.AssignAgeGroup(ageGroups, o.Age)
			switch {
			case o.Age == nil:
				t.AgeMissing++
			case !ok:
				t.AgeUnmatched++
			}
		}
		s.Count(o.Meta, mk, gk, label)
		t.Observations++
		if gk.IsSentinel() {
			t.Sentinels++
		}
	}
}

// SliceSource serves observations from memory.
type SliceSource struct {
	items []Observation
	pos   int
}

// NewSliceSource wraps obs as a Source.
func NewSliceSource(obs []Observation) *SliceSource { return &SliceSource{items: obs} }

func (s *SliceSource) Next() (Observation, error) {
	if s.pos >= len(s.items) {
		return Observation{}, io.EOF
	}
	o := s.items[s.pos]
	s.pos++
	return o, nil
}
