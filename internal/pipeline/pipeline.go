// Package pipeline wires configuration, event data, reduction, rendering and
// the optional results ledger into the three invocations exposed by the
// command-line tools: efficiency, stability and spectra.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"github.com/banshee-data/calibration.report/internal/report"
	"github.com/banshee-data/calibration.report/internal/results"
	"github.com/banshee-data/calibration.report/internal/security"
	"github.com/banshee-data/calibration.report/internal/version"
	"github.com/google/uuid"
)

// DefaultBins is the histogram binning used when Options.Bins is zero.
const DefaultBins = 300

// DefaultOutputDir is the artifact directory used when Options.OutputDir is
// empty.
const DefaultOutputDir = "OUTPUT"

// Options configures one invocation.
type Options struct {
	Detector   int
	RunType    config.RunType
	ConfigPath string
	Bins       int
	OutputDir  string
	Formats    []report.Format
	Workers    int

	// ResultsDB, when set, is the path of a results ledger that receives
	// this invocation's per-run scalars and group statistics.
	ResultsDB string

	// Source replaces the SQLite run-file source.
	Source events.Source
	// FS is used to read the configuration and write artifacts. Defaults to
	// the OS filesystem.
	FS fsutil.FileSystem
}

// Result describes a completed invocation.
type Result struct {
	Catalog    *catalog.Catalog
	Build      *reduce.BuildResult
	Efficiency *reduce.EfficiencySeries
	Stability  *reduce.StabilitySeries
	Spectra    []*histogram.Amplitude

	Artifacts    []string
	InvocationID uuid.UUID
}

func (o Options) withDefaults() Options {
	if o.Bins == 0 {
		o.Bins = DefaultBins
	}
	if o.OutputDir == "" {
		o.OutputDir = DefaultOutputDir
	}
	if o.FS == nil {
		o.FS = fsutil.OSFileSystem{}
	}
	if o.Source == nil {
		o.Source = events.NewSQLiteSource()
	}
	return o
}

func (o Options) buildOptions(threshold float64) reduce.BuildOptions {
	return reduce.BuildOptions{
		Detector:  o.Detector,
		Threshold: threshold,
		NBins:     o.Bins,
		Workers:   o.Workers,
	}
}

// invocation is the shared state of a run after configuration resolution.
type invocation struct {
	opts     Options
	cat      *catalog.Catalog
	renderer *report.Renderer
	ledger   *results.Ledger
	started  time.Time
}

func start(opts Options) (*invocation, error) {
	opts = opts.withDefaults()
	if opts.Bins < 0 {
		return nil, fmt.Errorf("%w: bins must be positive, got %d", config.ErrConfiguration, opts.Bins)
	}
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("%w: no configuration file given", config.ErrConfiguration)
	}

	cfg, err := config.LoadFS(opts.FS, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Resolve(cfg, opts.Detector, opts.RunType)
	if err != nil {
		return nil, fmt.Errorf("detector %d %s: %w", opts.Detector, opts.RunType, err)
	}
	if len(cat.Runs) == 0 {
		return nil, fmt.Errorf("%s: %w: empty run list", cat.Describe(), config.ErrConfiguration)
	}
	monitoring.Logf("Using configuration %s: %s, %d runs", cfg.Name(), cat.Describe(), len(cat.Runs))

	inv := &invocation{
		opts:     opts,
		cat:      cat,
		renderer: report.New(opts.FS, opts.OutputDir, opts.Formats...),
		started:  time.Now(),
	}
	// The ledger is opened before any work so a bad path fails early.
	if opts.ResultsDB != "" {
		if inv.ledger, err = results.Open(opts.ResultsDB); err != nil {
			return nil, inv.fail(err)
		}
	}
	return inv, nil
}

func (inv *invocation) close() {
	if inv.ledger != nil {
		inv.ledger.Close()
	}
}

// prepareOutput creates the output tree. On the real filesystem each
// subdirectory is checked for symlinks that leave the output directory.
func (inv *invocation) prepareOutput(subdirs ...string) error {
	dir := inv.opts.OutputDir
	if err := inv.opts.FS.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	if _, ok := inv.opts.FS.(fsutil.OSFileSystem); !ok {
		return nil
	}
	for _, sub := range subdirs {
		if err := security.ValidatePathWithinDirectory(filepath.Join(dir, sub), dir); err != nil {
			return err
		}
	}
	return nil
}

func (inv *invocation) fail(err error) error {
	return fmt.Errorf("%s: %w", inv.cat.Describe(), err)
}

func (inv *invocation) record(ctx context.Context, kind results.Kind, rows []reduce.RunMetrics, groups []results.GroupRecord) (uuid.UUID, error) {
	if inv.ledger == nil {
		return uuid.Nil, nil
	}
	return inv.ledger.Record(ctx, results.Invocation{
		Kind:       kind,
		Detector:   inv.cat.Detector,
		RunType:    inv.cat.RunType,
		Threshold:  inv.cat.Threshold,
		NBins:      inv.opts.Bins,
		ConfigPath: inv.opts.ConfigPath,
		Version:    version.Version,
		StartedAt:  inv.started,
		Runs:       rows,
		Groups:     groups,
	})
}

// RunEfficiency computes the per-run detection efficiency, the sub-group
// statistics and control bands, and renders the efficiency artifacts.
func RunEfficiency(ctx context.Context, opts Options) (*Result, error) {
	inv, err := start(opts)
	if err != nil {
		return nil, err
	}
	defer inv.close()

	build, err := reduce.Build(ctx, inv.opts.Source, inv.cat.Runs, inv.opts.buildOptions(inv.cat.Threshold))
	if err != nil {
		return nil, inv.fail(err)
	}
	series, err := reduce.ReduceEfficiency(build, inv.cat.RunType, inv.cat.Threshold, inv.cat.SplitN)
	if err != nil {
		return nil, inv.fail(err)
	}
	rows := reduce.Metrics(build, series)

	if err := inv.prepareOutput("Efficiency"); err != nil {
		return nil, inv.fail(err)
	}
	artifacts, err := inv.renderer.Efficiency(inv.cat.Detector, inv.cat.RunType, series, rows)
	if err != nil {
		return nil, inv.fail(err)
	}

	groups := make([]results.GroupRecord, len(series.Groups))
	for i, g := range series.Groups {
		groups[i] = results.GroupRecord{Group: g.Name, Stats: g.Stats, Band: g.Band}
	}
	id, err := inv.record(ctx, results.KindEfficiency, rows, groups)
	if err != nil {
		inv.renderer.Discard(artifacts)
		return nil, inv.fail(err)
	}

	return &Result{
		Catalog:      inv.cat,
		Build:        build,
		Efficiency:   series,
		Artifacts:    artifacts,
		InvocationID: id,
	}, nil
}

// RunStability computes the per-run peak position with its quantization
// error and renders the stability artifacts.
func RunStability(ctx context.Context, opts Options) (*Result, error) {
	inv, err := start(opts)
	if err != nil {
		return nil, err
	}
	defer inv.close()

	build, err := reduce.Build(ctx, inv.opts.Source, inv.cat.Runs, inv.opts.buildOptions(inv.cat.Threshold))
	if err != nil {
		return nil, inv.fail(err)
	}
	series, err := reduce.ReduceStability(build.PeakPositions, inv.opts.Bins, histogram.DomainMax,
		inv.cat.RunType, inv.cat.SplitN, inv.cat.IDs())
	if err != nil {
		return nil, inv.fail(err)
	}
	rows := reduce.Metrics(build, nil)

	if err := inv.prepareOutput("Stability"); err != nil {
		return nil, inv.fail(err)
	}
	artifacts, err := inv.renderer.Stability(inv.cat.Detector, inv.cat.RunType, series, rows)
	if err != nil {
		return nil, inv.fail(err)
	}

	groups := make([]results.GroupRecord, len(series.Groups))
	for i, g := range series.Groups {
		groups[i] = results.GroupRecord{Group: g.Name}
		// An empty stability group is recorded with N = 0 rather than failing.
		if stats, err := reduce.Stats(g.Name, g.Points); err == nil {
			groups[i].Stats = stats
			groups[i].Band = reduce.NewControlBand(stats)
		}
	}
	id, err := inv.record(ctx, results.KindStability, rows, groups)
	if err != nil {
		inv.renderer.Discard(artifacts)
		return nil, inv.fail(err)
	}

	return &Result{
		Catalog:      inv.cat,
		Build:        build,
		Stability:    series,
		Artifacts:    artifacts,
		InvocationID: id,
	}, nil
}

// ErrRunRange reports a spectra range outside the catalog.
var ErrRunRange = errors.New("invalid run range")

// RunSpectra renders the full, uncut amplitude spectra of catalog entries
// [first, last), each normalised by its run's total intensity.
func RunSpectra(ctx context.Context, opts Options, first, last int) (*Result, error) {
	inv, err := start(opts)
	if err != nil {
		return nil, err
	}
	defer inv.close()
	if first < 0 || last > len(inv.cat.Runs) || first >= last {
		return nil, inv.fail(fmt.Errorf("%w: [%d, %d) of %d runs", ErrRunRange, first, last, len(inv.cat.Runs)))
	}

	hists, err := reduce.BuildSpectra(ctx, inv.opts.Source, inv.cat.Runs, first, last, inv.opts.buildOptions(0))
	if err != nil {
		return nil, inv.fail(err)
	}

	if err := inv.prepareOutput(); err != nil {
		return nil, inv.fail(err)
	}
	artifacts, err := inv.renderer.Spectra(inv.cat.Detector, inv.cat.RunType, inv.cat.Runs[first:last], first, hists)
	if err != nil {
		return nil, inv.fail(err)
	}

	return &Result{
		Catalog:   inv.cat,
		Spectra:   hists,
		Artifacts: artifacts,
	}, nil
}
