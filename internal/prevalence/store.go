// Package prevalence accumulates sample size and genotype counts for
// drug-resistance marker observations and derives prevalence ratios.
//
// A Store is built in three phases that never overlap: Tabulate streams
// observations into it, Finalize computes prevalence once counting is done,
// and report code reads the finished store.
package prevalence

import (
	"time"

	"github.com/KaramelBytes/wwarncalc/internal/markers"
)

// All is the group label every observation is counted under.
const All = "All"

// MetadataKey identifies one reporting row group.
type MetadataKey struct {
	StudyID      string
	StudyLabel   string
	Country      string
	Site         string
	Investigator string
}

// Fields returns the key in output column order.
func (k MetadataKey) Fields() []string {
	return []string{k.StudyID, k.StudyLabel, k.Country, k.Site, k.Investigator}
}

// Observation is one marker/genotype call of one subject.
type Observation struct {
	Meta          MetadataKey
	PatientID     string
	Age           *float64
	InclusionDate time.Time
	Marker        string
	Genotype      string
}

// Leaf holds the counters of one (genotype, group label) cell.
type Leaf struct {
	Genotyped  int
	Prevalence float64
	// Computed is set by Finalize. Sentinel genotypes never get a prevalence.
	Computed bool
}

// Store is the nested aggregate: metadata key -> marker -> genotype -> group label.
type Store struct {
	labels []string
	order  []MetadataKey
	sites  map[MetadataKey]*SiteStats
}

// SiteStats holds the markers observed for one metadata key.
type SiteStats struct {
	Key     MetadataKey
	order   []string
	markers map[string]*MarkerStats
}

// MarkerStats holds the sample size and genotype counters of one marker.
type MarkerStats struct {
	Marker     markers.MarkerKey
	sampleSize map[string]int
	order      []string
	genotypes  map[string]*GenotypeStats
}

// GenotypeStats holds the per group counters of one genotype.
type GenotypeStats struct {
	Genotype markers.GenotypeKey
	leaves   map[string]*Leaf
}

// NewStore returns an empty store counting under All plus the given group labels.
func NewStore(labels ...string) *Store {
	s := &Store{sites: map[MetadataKey]*SiteStats{}}
	s.declare(labels)
	return s
}

func (s *Store) declare(labels []string) {
	for _, l := range labels {
		if l == All || contains(s.labels, l) {
			continue
		}
		s.labels = append(s.labels, l)
		// Containers created before this label was known get it now so
		// every touched key carries the full column set.
		for _, site := range s.sites {
			for _, m := range site.markers {
				m.sampleSize[l] += 0
				for _, g := range m.genotypes {
					if _, ok := g.leaves[l]; !ok {
						g.leaves[l] = &Leaf{}
					}
				}
			}
		}
	}
}

// Labels returns All followed by the declared group labels.
func (s *Store) Labels() []string {
	return append([]string{All}, s.labels...)
}

// GroupLabels returns the declared group labels without All.
func (s *Store) GroupLabels() []string { return append([]string(nil), s.labels...) }

// Sites returns the metadata keys in first-seen order.
func (s *Store) Sites() []*SiteStats {
	out := make([]*SiteStats, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.sites[k])
	}
	return out
}

// Site returns the statistics of one metadata key.
func (s *Store) Site(k MetadataKey) (*SiteStats, bool) {
	site, ok := s.sites[k]
	return site, ok
}

// Marker looks up the statistics of one marker under a metadata key.
func (s *Store) Marker(k MetadataKey, m markers.MarkerKey) (*MarkerStats, bool) {
	site, ok := s.sites[k]
	if !ok {
		return nil, false
	}
	return site.Marker(m)
}

// Len returns the number of distinct metadata keys.
func (s *Store) Len() int { return len(s.order) }

// MarkerCount returns the number of distinct (metadata key, marker) pairs.
func (s *Store) MarkerCount() int {
	n := 0
	for _, site := range s.sites {
		n += len(site.order)
	}
	return n
}

// Markers returns the markers of the site in first-seen order.
func (st *SiteStats) Markers() []*MarkerStats {
	out := make([]*MarkerStats, 0, len(st.order))
	for _, k := range st.order {
		out = append(out, st.markers[k])
	}
	return out
}

// Marker returns the statistics of m, matched by exact locus order.
func (st *SiteStats) Marker(m markers.MarkerKey) (*MarkerStats, bool) {
	ms, ok := st.markers[m.String()]
	return ms, ok
}

// SampleSize returns the sample size for a group label.
func (m *MarkerStats) SampleSize(label string) int { return m.sampleSize[label] }

// Genotypes returns the genotypes of the marker in first-seen order.
func (m *MarkerStats) Genotypes() []*GenotypeStats {
	out := make([]*GenotypeStats, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.genotypes[k])
	}
	return out
}

// Genotype returns the statistics of one genotype.
func (m *MarkerStats) Genotype(g markers.GenotypeKey) (*GenotypeStats, bool) {
	gs, ok := m.genotypes[g.String()]
	return gs, ok
}

// Leaf returns a copy of the counters for a group label.
func (g *GenotypeStats) Leaf(label string) (Leaf, bool) {
	l, ok := g.leaves[label]
	if !ok {
		return Leaf{}, false
	}
	return *l, true
}

// Count adds one observation of genotype for marker under meta. It is counted
// under All and, when label is non-empty, under that group label as well.
func (s *Store) Count(meta MetadataKey, marker markers.MarkerKey, genotype markers.GenotypeKey, label string) {
	if label != "" && label != All && !contains(s.labels, label) {
		s.declare([]string{label})
	}
	m := s.marker(meta, marker)
	g := m.genotype(genotype, s.labels)
	valid := !genotype.IsSentinel()
	bump := func(l string) {
		g.leaves[l].Genotyped++
		if valid {
			m.sampleSize[l]++
		}
	}
	bump(All)
	if label != "" && label != All {
		bump(label)
	}
}

func (s *Store) marker(meta MetadataKey, key markers.MarkerKey) *MarkerStats {
	site, ok := s.sites[meta]
	if !ok {
		site = &SiteStats{Key: meta, markers: map[string]*MarkerStats{}}
		s.sites[meta] = site
		s.order = append(s.order, meta)
	}
	k := key.String()
	m, ok := site.markers[k]
	if !ok {
		m = &MarkerStats{
			Marker:     append(markers.MarkerKey(nil), key...),
			sampleSize: make(map[string]int, len(s.labels)+1),
			genotypes:  map[string]*GenotypeStats{},
		}
		m.sampleSize[All] = 0
		for _, l := range s.labels {
			m.sampleSize[l] = 0
		}
		site.markers[k] = m
		site.order = append(site.order, k)
	}
	return m
}

func (m *MarkerStats) genotype(key markers.GenotypeKey, labels []string) *GenotypeStats {
	k := key.String()
	g, ok := m.genotypes[k]
	if !ok {
		g = &GenotypeStats{
			Genotype: append(markers.GenotypeKey(nil), key...),
			leaves:   make(map[string]*Leaf, len(labels)+1),
		}
		g.leaves[All] = &Leaf{}
		for _, l := range labels {
			g.leaves[l] = &Leaf{}
		}
		m.genotypes[k] = g
		m.order = append(m.order, k)
	}
	return g
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
