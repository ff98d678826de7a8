package prevalence

// Finalize computes prevalence = genotyped / sample size for every non
// sentinel genotype leaf. A zero genotyped count yields zero. Running it again
// recomputes the same values.
func Finalize(s *Store) {
	for _, site := range s.sites {
		for _, m := range site.markers {
			for _, g := range m.genotypes {
				if g.Genotype.IsSentinel() {
					continue
				}
				for label, leaf := range g.leaves {
					leaf.Prevalence = ratio(leaf.Genotyped, m.sampleSize[label])
					leaf.Computed = true
				}
			}
		}
	}
}

func ratio(genotyped, sampleSize int) float64 {
	if genotyped == 0 || sampleSize == 0 {
		return 0
	}
	return float64(genotyped) / float64(sampleSize)
}
