// Package report renders reduced calibration series as PNG graphs
// (gonum/plot), interactive HTML pages (go-echarts) and XLSX workbooks
// (excelize) under an output directory.
//
// Layout of the output directory:
//
//	Efficiency/Efficiency_singleruns_det<D>_<T>.png
//	Efficiency/EfficiencyHistogram_singleruns_det<D>_<T>.png
//	Stability/Stability_det<D>_<T>.png
//	Amplitudes_det<D>_<T>_from<F>_to<L>.png
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/security"
)

// Format is an artifact file format.
type Format string

const (
	PNG  Format = "png"
	HTML Format = "html"
	XLSX Format = "xlsx"
)

// DefaultFormats are rendered when no format is requested.
var DefaultFormats = []Format{PNG}

// ParseFormats parses a comma-separated list such as "png,html". Duplicates
// are ignored; an empty string yields DefaultFormats.
func ParseFormats(s string) ([]Format, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return append([]Format(nil), DefaultFormats...), nil
	}
	seen := make(map[Format]bool)
	var out []Format
	for _, part := range strings.Split(s, ",") {
		f := Format(strings.ToLower(strings.TrimSpace(part)))
		switch f {
		case PNG, HTML, XLSX:
		default:
			return nil, fmt.Errorf("unknown report format %q (want png, html or xlsx)", part)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// EfficiencyBase is the extensionless artifact name of the efficiency graph.
func EfficiencyBase(det int, runType config.RunType) string {
	return filepath.Join("Efficiency", fmt.Sprintf("Efficiency_singleruns_det%d_%s", det, runType))
}

// EfficiencyHistogramBase is the extensionless artifact name of the
// efficiency distribution panels.
func EfficiencyHistogramBase(det int, runType config.RunType) string {
	return filepath.Join("Efficiency", fmt.Sprintf("EfficiencyHistogram_singleruns_det%d_%s", det, runType))
}

// StabilityBase is the extensionless artifact name of the stability graph.
func StabilityBase(det int, runType config.RunType) string {
	return filepath.Join("Stability", fmt.Sprintf("Stability_det%d_%s", det, runType))
}

// SpectraBase is the extensionless artifact name of the spectra overlay for
// catalog indices [first, last).
func SpectraBase(det int, runType config.RunType, first, last int) string {
	return fmt.Sprintf("Amplitudes_det%d_%s_from%d_to%d", det, runType, first, last-1)
}

// Renderer writes artifacts below an output directory.
type Renderer struct {
	fs        fsutil.FileSystem
	outputDir string
	formats   map[Format]bool
}

// New returns a Renderer writing the given formats into outputDir through
// fsys. With no formats, DefaultFormats are used.
func New(fsys fsutil.FileSystem, outputDir string, formats ...Format) *Renderer {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	r := &Renderer{fs: fsys, outputDir: outputDir, formats: make(map[Format]bool)}
	for _, f := range formats {
		r.formats[f] = true
	}
	return r
}

// OutputDir returns the directory artifacts are written to.
func (r *Renderer) OutputDir() string { return r.outputDir }

func (r *Renderer) wants(f Format) bool { return r.formats[f] }

type artifact struct {
	name  string
	write fsutil.WriteFunc
}

// emit writes artifacts in order. If any fails, those already written by this
// call are removed so a failed render leaves nothing behind.
func (r *Renderer) emit(artifacts []artifact) ([]string, error) {
	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := security.ValidateArtifactName(a.name); err != nil {
			r.Discard(written)
			return nil, err
		}
		path := filepath.Join(r.outputDir, a.name)
		if err := fsutil.WriteArtifact(r.fs, path, a.write); err != nil {
			r.Discard(written)
			return nil, err
		}
		written = append(written, path)
		monitoring.Logf("Wrote %s", path)
	}
	return written, nil
}

// Discard removes artifacts written by an earlier call. Removal failures are
// logged and otherwise ignored.
func (r *Renderer) Discard(paths []string) {
	for _, p := range paths {
		if err := r.fs.Remove(p); err != nil {
			monitoring.Logf("failed to remove partial artifact %s: %v", p, err)
		}
	}
}
