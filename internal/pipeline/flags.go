package pipeline

import (
	"flag"
	"fmt"

	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/report"
)

// Flags binds the options shared by the command-line tools to a FlagSet.
type Flags struct {
	opts        Options
	runType     string
	formats     string
	showVersion bool
}

// NewFlags registers the shared flags on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.IntVar(&f.opts.Detector, "det", 0, fmt.Sprintf("detector id %v", config.DetectorIDs()))
	fs.StringVar(&f.runType, "type", string(config.SampleIn), "run type: Sin or Sout")
	fs.StringVar(&f.opts.ConfigPath, "config", "", "run configuration file (.cmnd, .yaml or .yml)")
	fs.IntVar(&f.opts.Bins, "bins", DefaultBins, "amplitude histogram bins")
	fs.StringVar(&f.opts.OutputDir, "out", DefaultOutputDir, "artifact output directory")
	fs.StringVar(&f.formats, "format", string(report.PNG), "comma-separated artifact formats: png, html, xlsx")
	fs.IntVar(&f.opts.Workers, "workers", 0, "runs read concurrently (0 = GOMAXPROCS)")
	fs.StringVar(&f.opts.ResultsDB, "results", "", "optional SQLite results ledger")
	fs.BoolVar(&f.showVersion, "version", false, "print version and exit")
	return f
}

// ShowVersion reports whether -version was given.
func (f *Flags) ShowVersion() bool { return f.showVersion }

// Options validates the parsed flags.
func (f *Flags) Options() (Options, error) {
	opts := f.opts
	if opts.ConfigPath == "" {
		return Options{}, fmt.Errorf("%w: -config is required", config.ErrConfiguration)
	}
	if opts.Bins <= 0 {
		return Options{}, fmt.Errorf("%w: -bins must be positive, got %d", config.ErrConfiguration, opts.Bins)
	}
	rt, err := config.ParseRunType(f.runType)
	if err != nil {
		return Options{}, err
	}
	opts.RunType = rt
	if opts.Formats, err = report.ParseFormats(f.formats); err != nil {
		return Options{}, err
	}
	return opts, nil
}
