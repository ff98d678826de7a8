package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/wwarncalc/internal/config"
	"github.com/KaramelBytes/wwarncalc/internal/grouping"
	"github.com/KaramelBytes/wwarncalc/internal/markers"
	"github.com/KaramelBytes/wwarncalc/internal/metrics"
	"github.com/KaramelBytes/wwarncalc/internal/prevalence"
	"github.com/KaramelBytes/wwarncalc/internal/report"
	"github.com/KaramelBytes/wwarncalc/internal/sink"
	"github.com/KaramelBytes/wwarncalc/internal/source"
	"github.com/KaramelBytes/wwarncalc/internal/utils"
)

// Flags shared by the template and db commands. They override config values
// when set.
var (
	runMarkerList      string
	runAgeGroups       string
	runCopyNumberBins  string
	runYearStep        int
	runOutputDir       string
	runOutputPrefix    string
	runMetricsTextfile string
	runPreview         bool
)

func addRunFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVarP(&runMarkerList, "marker-list", "m", "", "marker list file (overrides marker_list)")
	f.StringVarP(&runAgeGroups, "age-groups", "a", "", "age group file (overrides age_groups)")
	f.StringVarP(&runCopyNumberBins, "copy-number-groups", "c", "", "copy number group file (overrides copy_number_groups)")
	f.IntVar(&runYearStep, "year-step", 0, "split sites into inclusion-year intervals of this many years (0 = off)")
	f.StringVarP(&runOutputDir, "output-dir", "o", "", "output directory or s3://bucket/prefix (overrides output_dir)")
	f.StringVar(&runOutputPrefix, "prefix", "", "output file prefix (overrides output_prefix)")
	f.StringVar(&runMetricsTextfile, "metrics-textfile", "", "write run metrics in Prometheus textfile format")
	f.BoolVar(&runPreview, "preview", false, "print the per-category tables to stdout")
}

// effectiveConfig returns a copy of the configuration with command flags
// applied and "~" expanded in input and output file paths.
func effectiveConfig(c *cobra.Command) (*cfgpkg.Global, error) {
	base, err := ensureConfig()
	if err != nil {
		return nil, err
	}
	eff := *base
	f := c.Flags()
	if f.Changed("marker-list") {
		eff.MarkerList = runMarkerList
	}
	if f.Changed("age-groups") {
		eff.AgeGroups = runAgeGroups
	}
	if f.Changed("copy-number-groups") {
		eff.CopyNumberGroups = runCopyNumberBins
	}
	if f.Changed("year-step") {
		if runYearStep < 0 || runYearStep > grouping.MaxYearStep {
			return nil, fmt.Errorf("--year-step must be between 0 and %d", grouping.MaxYearStep)
		}
		eff.YearStep = runYearStep
	}
	if f.Changed("output-dir") {
		eff.OutputDir = runOutputDir
	}
	if f.Changed("prefix") {
		eff.OutputPrefix = runOutputPrefix
	}
	if f.Changed("metrics-textfile") {
		eff.MetricsTextfile = runMetricsTextfile
	}
	for _, p := range []*string{&eff.MarkerList, &eff.AgeGroups, &eff.CopyNumberGroups, &eff.MetricsTextfile} {
		expanded, err := utils.ExpandHome(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	return &eff, nil
}

// inputs are the parsed grouping files of a run.
type inputs struct {
	list *markers.List
	ages []grouping.AgeGroup
	bins []grouping.CopyNumberBin
}

func loadInputs(c *cfgpkg.Global) (*inputs, error) {
	if c.MarkerList == "" {
		return nil, errors.New("marker list required (--marker-list or marker_list)")
	}
	in := &inputs{}
	var err error
	if in.list, err = markers.LoadList(c.MarkerList); err != nil {
		return nil, err
	}
	if c.AgeGroups != "" {
		if in.ages, err = grouping.LoadAgeGroups(c.AgeGroups); err != nil {
			return nil, err
		}
	}
	if c.CopyNumberGroups != "" {
		if in.bins, err = grouping.LoadCopyNumberBins(c.CopyNumberGroups); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// dataSource opens a record reader and scans inclusion date ranges for it.
type dataSource struct {
	name       string
	open       func(ctx context.Context) (source.Reader, error)
	dateRanges func(ctx context.Context) (grouping.DateRanges, error)
	// procedures is set when combinations are produced by the database.
	procedures bool
}

type runSummary struct {
	RunID   string
	Tally   prevalence.Tally
	Stats   source.NormalizeStats
	Sites   int
	Outputs []string
}

// runPipeline tabulates the source, finalizes prevalence, renders the reports
// and publishes them.
func runPipeline(ctx context.Context, c *cfgpkg.Global, ds dataSource, out io.Writer) (sum runSummary, err error) {
	start := time.Now()
	sum.RunID = uuid.NewString()
	lg := appLogger().With(zap.String("run_id", sum.RunID), zap.String("source", ds.name))
	m := metrics.New()

	in, err := loadInputs(c)
	if err != nil {
		return sum, err
	}
	norm := &source.Normalizer{CopyNumberBins: in.bins, Logger: lg}
	for _, cb := range in.list.Combinations {
		// combinations with a stored procedure are computed by the database
		if ds.procedures && cb.Procedure != "" {
			continue
		}
		norm.Combinations = append(norm.Combinations, cb)
	}
	if c.YearStep > 0 {
		ranges, err := ds.dateRanges(ctx)
		if err != nil {
			return sum, fmt.Errorf("scan inclusion dates: %w", err)
		}
		if norm.YearBins, err = grouping.NewYearBins(c.YearStep, ranges); err != nil {
			return sum, err
		}
		lg.Debug("year bins built", zap.Int("sites", len(ranges)), zap.Int("step_years", c.YearStep))
	}

	r, err := ds.open(ctx)
	if err != nil {
		return sum, err
	}
	lg.Info("source opened")
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
		lg.Debug("source closed")
	}()

	store := prevalence.NewStore()
	tally, err := prevalence.Tabulate(store, source.NewStream(r, norm), in.ages)
	if err != nil {
		return sum, err
	}
	prevalence.Finalize(store)
	sum.Tally, sum.Stats, sum.Sites = tally, norm.Stats(), store.Len()
	m.Observe(tally, norm.Stats(), store)
	lg.Info("tabulated",
		zap.Int("records", sum.Stats.Records),
		zap.Int("observations", tally.Observations),
		zap.Int("sentinels", tally.Sentinels),
		zap.Int("sites", store.Len()),
		zap.Int("markers", store.MarkerCount()))
	if tally.AgeUnmatched > 0 {
		lg.Debug("observations outside every age group", zap.Int("count", tally.AgeUnmatched))
	}

	grouped := report.Group(store, in.list, lg)
	outs, err := report.Render(grouped, c.OutputPrefix)
	if err != nil {
		return sum, err
	}
	dst, err := sink.Open(ctx, sink.Options{
		OutputDir:   c.OutputDir,
		S3Bucket:    c.S3Bucket,
		S3Region:    c.S3Region,
		S3Endpoint:  c.S3Endpoint,
		S3PathStyle: c.S3PathStyle,
	})
	if err != nil {
		return sum, err
	}
	if err := sink.Publish(ctx, dst, outs, lg); err != nil {
		return sum, err
	}
	for _, o := range outs {
		sum.Outputs = append(sum.Outputs, dst.Location(o.Name))
	}

	if runPreview {
		report.Preview(out, report.Tables(grouped))
	}
	m.Finish(len(outs), start)
	if c.MetricsTextfile != "" {
		if err := m.WriteTextfile(c.MetricsTextfile); err != nil {
			return sum, err
		}
	}
	lg.Info("run complete", zap.Int("outputs", len(outs)), zap.Duration("elapsed", time.Since(start)))
	return sum, nil
}

func printSummary(w io.Writer, sum runSummary) {
	fmt.Fprintf(w, "✓ Tabulated %d observations from %d records across %d sites (run %s)\n",
		sum.Tally.Observations, sum.Stats.Records, sum.Sites, sum.RunID)
	for _, o := range sum.Outputs {
		fmt.Fprintf(w, "✓ Wrote %s\n", o)
	}
}
