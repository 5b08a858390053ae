package report

import (
	"fmt"
	"io"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/reduce"
)

// Efficiency renders the efficiency graph and distribution panels. rows
// supplies the per-run table of the XLSX workbook. It returns the paths
// written.
func (r *Renderer) Efficiency(det int, runType config.RunType, s *reduce.EfficiencySeries, rows []reduce.RunMetrics) ([]string, error) {
	var artifacts []artifact
	if r.wants(PNG) {
		p, err := efficiencyPlot(det, runType, s)
		if err != nil {
			return nil, fmt.Errorf("efficiency plot: %w", err)
		}
		artifacts = append(artifacts,
			artifact{name: EfficiencyBase(det, runType) + ".png", write: writePNG(p)},
			artifact{name: EfficiencyHistogramBase(det, runType) + ".png", write: func(w io.Writer) error {
				return writeDistributionPNG(w, det, s)
			}},
		)
	}
	if r.wants(HTML) {
		artifacts = append(artifacts, artifact{name: EfficiencyBase(det, runType) + ".html", write: func(w io.Writer) error {
			return writeEfficiencyHTML(w, det, runType, s)
		}})
	}
	if r.wants(XLSX) {
		artifacts = append(artifacts, artifact{name: EfficiencyBase(det, runType) + ".xlsx", write: func(w io.Writer) error {
			return writeEfficiencyXLSX(w, s, rows)
		}})
	}
	return r.emit(artifacts)
}

// Stability renders the peak-position stability graph.
func (r *Renderer) Stability(det int, runType config.RunType, s *reduce.StabilitySeries, rows []reduce.RunMetrics) ([]string, error) {
	var artifacts []artifact
	if r.wants(PNG) {
		p, err := stabilityPlot(det, runType, s)
		if err != nil {
			return nil, fmt.Errorf("stability plot: %w", err)
		}
		artifacts = append(artifacts, artifact{name: StabilityBase(det, runType) + ".png", write: writePNG(p)})
	}
	if r.wants(HTML) {
		artifacts = append(artifacts, artifact{name: StabilityBase(det, runType) + ".html", write: func(w io.Writer) error {
			return writeStabilityHTML(w, det, runType, s)
		}})
	}
	if r.wants(XLSX) {
		artifacts = append(artifacts, artifact{name: StabilityBase(det, runType) + ".xlsx", write: func(w io.Writer) error {
			return writeStabilityXLSX(w, s, rows)
		}})
	}
	return r.emit(artifacts)
}

// Spectra renders the overlay of full amplitude spectra for runs, which are
// catalog entries first, first+1, ... and correspond one to one with hists.
func (r *Renderer) Spectra(det int, runType config.RunType, runs []catalog.Run, first int, hists []*histogram.Amplitude) ([]string, error) {
	if len(runs) != len(hists) {
		return nil, fmt.Errorf("spectra: %d runs but %d histograms", len(runs), len(hists))
	}
	base := SpectraBase(det, runType, first, first+len(hists))

	var artifacts []artifact
	if r.wants(PNG) {
		p, err := spectraPlot(det, runType, runs, first, hists)
		if err != nil {
			return nil, fmt.Errorf("spectra plot: %w", err)
		}
		artifacts = append(artifacts, artifact{name: base + ".png", write: writePNG(p)})
	}
	if r.wants(HTML) {
		artifacts = append(artifacts, artifact{name: base + ".html", write: func(w io.Writer) error {
			return writeSpectraHTML(w, det, runType, runs, first, hists)
		}})
	}
	if r.wants(XLSX) {
		artifacts = append(artifacts, artifact{name: base + ".xlsx", write: func(w io.Writer) error {
			return writeSpectraXLSX(w, runs, first, hists)
		}})
	}
	return r.emit(artifacts)
}
