// Package report projects a finalized prevalence store onto the categories
// and labels of a marker list and renders the result as tab separated files.
package report

import (
	"go.uber.org/zap"

	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
)

// Cell is the accumulated statistics of one (label, group) pair.
type Cell struct {
	Genotyped  int
	Prevalence float64
	// Sentinel marks labels made of missing-data genotypes. They report
	// counts only.
	Sentinel bool
}

// Category groups the labels of one output category at one site.
type Category struct {
	Name       string
	sampleSize map[string]int
	labels     []string
	cells      map[string]map[string]*Cell
}

// SampleSize returns the sample size of the first marker that fed the category.
func (c *Category) SampleSize(group string) int { return c.sampleSize[group] }

// Labels returns the labels of the category in the order they were first fed.
func (c *Category) Labels() []string { return append([]string(nil), c.labels...) }

// Cell returns the statistics of a label in a group.
func (c *Category) Cell(label, group string) (Cell, bool) {
	byGroup, ok := c.cells[label]
	if !ok {
		return Cell{}, false
	}
	cell, ok := byGroup[group]
	if !ok {
		return Cell{}, false
	}
	return *cell, true
}

// Site holds the categories of one metadata key.
type Site struct {
	Key        prevalence.MetadataKey
	categories map[string]*Category
	order      []string
}

// Category returns one category of the site.
func (s *Site) Category(name string) (*Category, bool) {
	c, ok := s.categories[name]
	return c, ok
}

// Grouped is the projection of a store onto a marker list.
type Grouped struct {
	// Groups lists All followed by the group labels of the store.
	Groups     []string
	categories []string
	labels     map[string][]string
	sites      []*Site
	// Unlisted holds stored markers that are missing from the marker list.
	Unlisted []string
}

// Sites returns the sites in store order.
func (g *Grouped) Sites() []*Site { return g.sites }

// Categories returns the categories of the marker list in declaration order.
func (g *Grouped) Categories() []string { return append([]string(nil), g.categories...) }

// Labels returns every label of a category in marker list order.
func (g *Grouped) Labels(category string) []string {
	return append([]string(nil), g.labels[category]...)
}

// Categories returns the site's categories in marker list order.
func (s *Site) Categories(g *Grouped) []*Category {
	out := make([]*Category, 0, len(s.categories))
	for _, name := range g.categories {
		if c, ok := s.categories[name]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Group sums the statistics of every listed genotype into its category and
// label. Markers absent from the list are skipped.
func Group(store *prevalence.Store, list *markers.List, log *zap.Logger) *Grouped {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Grouped{
		Groups:     store.Labels(),
		categories: list.Categories(),
		labels:     map[string][]string{},
	}
	for _, c := range g.categories {
		g.labels[c] = list.Labels(c)
	}
	unlisted := map[string]bool{}
	for _, st := range store.Sites() {
		site := &Site{Key: st.Key, categories: map[string]*Category{}}
		for _, ms := range st.Markers() {
			entry, ok := list.Lookup(ms.Marker)
			if !ok {
				name := ms.Marker.String()
				if !unlisted[name] {
					unlisted[name] = true
					g.Unlisted = append(g.Unlisted, name)
					log.Debug("marker not in marker list", zap.String("marker", name))
				}
				continue
			}
			for _, info := range entry.Valid {
				cat := site.category(info.Category, ms, g.Groups)
				cells := cat.label(info.Label, g.Groups, info.Genotype.IsSentinel())
				key, ok := markers.Reorder(entry.Marker, info.Genotype, ms.Marker)
				if !ok {
					continue
				}
				gs, ok := ms.Genotype(key)
				if !ok {
					continue
				}
				for _, group := range g.Groups {
					leaf, ok := gs.Leaf(group)
					if !ok {
						continue
					}
					cells[group].Genotyped += leaf.Genotyped
					cells[group].Prevalence += leaf.Prevalence
				}
			}
		}
		if len(site.order) > 0 {
			g.sites = append(g.sites, site)
		}
	}
	return g
}

func (s *Site) category(name string, ms *prevalence.MarkerStats, groups []string) *Category {
	c, ok := s.categories[name]
	if ok {
		return c
	}
	c = &Category{Name: name, sampleSize: make(map[string]int, len(groups)), cells: map[string]map[string]*Cell{}}
	for _, group := range groups {
		c.sampleSize[group] = ms.SampleSize(group)
	}
	s.categories[name] = c
	s.order = append(s.order, name)
	return c
}

func (c *Category) label(name string, groups []string, sentinel bool) map[string]*Cell {
	cells, ok := c.cells[name]
	if ok {
		return cells
	}
	cells = make(map[string]*Cell, len(groups))
	for _, group := range groups {
		cells[group] = &Cell{Sentinel: sentinel}
	}
	c.cells[name] = cells
	c.labels = append(c.labels, name)
	return cells
}
