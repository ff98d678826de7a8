// Package metrics exposes the counters of one calculation run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
	"github.com/KaramelBytes/wwarncalc/internal/source"
)

const namespace = "wwarncalc"

// Run holds the metrics of one run on a private registry.
type Run struct {
	Registry *prometheus.Registry

	Records             prometheus.Counter
	Observations        prometheus.Counter
	Sentinels           prometheus.Counter
	AgeMissing          prometheus.Counter
	AgeUnmatched        prometheus.Counter
	CopyNumberFallbacks prometheus.Counter
	OutputFiles         prometheus.Counter
	Sites               prometheus.Gauge
	Markers             prometheus.Gauge
	Duration            prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// New registers the run metrics on a fresh registry.
func New() *Run {
	r := &Run{
		Registry:            prometheus.NewRegistry(),
		Records:             counter("records_total", "Subject records read from the source."),
		Observations:        counter("observations_total", "Marker observations tabulated."),
		Sentinels:           counter("sentinel_observations_total", "Observations with a not genotyped or genotyping failure value."),
		AgeMissing:          counter("age_missing_total", "Observations without an age while age groups are configured."),
		AgeUnmatched:        counter("age_unmatched_total", "Observations whose age falls outside every age group."),
		CopyNumberFallbacks: counter("copy_number_fallbacks_total", "Copy number values rounded because no bin matched."),
		OutputFiles:         counter("output_files_total", "Report files published."),
		Sites:               gauge("sites", "Distinct metadata keys in the aggregate."),
		Markers:             gauge("markers", "Distinct (metadata key, marker) pairs in the aggregate."),
		Duration:            gauge("run_duration_seconds", "Wall time of the run."),
	}
	r.Registry.MustRegister(
		r.Records, r.Observations, r.Sentinels, r.AgeMissing, r.AgeUnmatched,
		r.CopyNumberFallbacks, r.OutputFiles, r.Sites, r.Markers, r.Duration,
	)
	return r
}

// Observe records the outcome of the tabulation pass.
func (r *Run) Observe(t prevalence.Tally, n source.NormalizeStats, s *prevalence.Store) {
	r.Records.Add(float64(n.Records))
	r.Observations.Add(float64(t.Observations))
	r.Sentinels.Add(float64(t.Sentinels))
	r.AgeMissing.Add(float64(t.AgeMissing))
	r.AgeUnmatched.Add(float64(t.AgeUnmatched))
	r.CopyNumberFallbacks.Add(float64(n.CopyNumberFallbacks))
	r.Sites.Set(float64(s.Len()))
	r.Markers.Set(float64(s.MarkerCount()))
}

// Finish records the published outputs and the elapsed time since start.
func (r *Run) Finish(outputs int, start time.Time) {
	r.OutputFiles.Add(float64(outputs))
	r.Duration.Set(time.Since(start).Seconds())
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
