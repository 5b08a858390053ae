package reduce

import (
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// BandSigmas is the half-width of a control band in standard deviations.
	BandSigmas = 2.0

	// DistributionBins and DistributionHalfWidth define the efficiency
	// distribution histograms: DistributionBins bins centred on the mean
	// of all finite efficiencies.
	DistributionBins      = 50
	DistributionHalfWidth = 0.5e-13
)

// Point is one run's value in a plotted series. Index is the run's position
// in the catalog and is used as the x coordinate.
type Point struct {
	Index int
	RunID int
	Value float64
	Error float64
}

// GroupStats are the population mean and standard deviation of a group.
type GroupStats struct {
	N      int
	Mean   float64
	StdDev float64
}

// ControlBand is the acceptance window drawn around a group's mean.
type ControlBand struct {
	Center float64
	Upper  float64
	Lower  float64
}

// NewControlBand returns mean ± BandSigmas·stddev.
func NewControlBand(s GroupStats) ControlBand {
	return ControlBand{
		Center: s.Mean,
		Upper:  s.Mean + BandSigmas*s.StdDev,
		Lower:  s.Mean - BandSigmas*s.StdDev,
	}
}

// EfficiencyGroup is one sub-group of the efficiency series.
type EfficiencyGroup struct {
	Name   catalog.SubGroup
	Points []Point
	Stats  GroupStats
	Band   ControlBand

	// Distribution holds DistributionBins counts over
	// [DistributionMin, DistributionMax).
	Distribution []float64
}

// EfficiencySeries is the output of ReduceEfficiency.
type EfficiencySeries struct {
	Threshold float64

	// Efficiencies and Errors have one entry per run, before filtering.
	Efficiencies []float64
	Errors       []float64

	// Survivors are the runs with finite efficiency and error.
	Survivors []Point
	// Dropped lists catalog indices removed by the finite filter.
	Dropped []int

	// SplitN is the split point applied to Survivors.
	SplitN int
	Groups [2]EfficiencyGroup

	DistributionMin float64
	DistributionMax float64
}

// Efficiencies computes, for each run, the scaled histogram integral from
// the threshold bin to the bin holding the domain's upper bound, and the
// Poisson counting error sqrt(entries)/totalIntensity.
func Efficiencies(hists []*histogram.Amplitude, entries []int, totals []float64, threshold float64) ([]float64, []float64, error) {
	if len(hists) != len(entries) || len(hists) != len(totals) {
		return nil, nil, fmt.Errorf("length mismatch: %d histograms, %d entry counts, %d intensities", len(hists), len(entries), len(totals))
	}
	eff := make([]float64, len(hists))
	errs := make([]float64, len(hists))
	for j, h := range hists {
		binCut := h.FindBin(threshold)
		binEnd := h.FindBin(histogram.DomainMax)
		eff[j] = h.Integral(binCut, binEnd)
		errs[j] = math.Sqrt(float64(entries[j])) / totals[j]
	}
	return eff, errs, nil
}

// FilterFinite keeps the points whose value and error are both finite,
// preserving order, and returns the indices of the dropped points.
func FilterFinite(points []Point) (kept []Point, dropped []int) {
	kept = make([]Point, 0, len(points))
	for _, p := range points {
		if isFinite(p.Value) && isFinite(p.Error) {
			kept = append(kept, p)
		} else {
			dropped = append(dropped, p.Index)
		}
	}
	return kept, dropped
}

// SplitAt splits points at position n, clamping n to [0, len(points)]. The
// returned n is the effective split point.
func SplitAt(points []Point, n int) ([]Point, []Point, int) {
	if n < 0 {
		n = 0
	}
	if n > len(points) {
		n = len(points)
	}
	return points[:n], points[n:], n
}

// Stats returns the population mean and standard deviation of the point
// values. An empty group is an error.
func Stats(name catalog.SubGroup, points []Point) (GroupStats, error) {
	if len(points) == 0 {
		return GroupStats{}, &GroupError{Group: name, Err: ErrEmptyGroup}
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return GroupStats{N: len(points), Mean: mean, StdDev: std}, nil
}

// ReduceEfficiency computes per-run efficiencies, drops non-finite runs,
// splits the survivors at splitN and computes each group's statistics and
// control band.
func ReduceEfficiency(res *BuildResult, runType config.RunType, threshold float64, splitN int) (*EfficiencySeries, error) {
	monitoring.Section("Building efficiency graph")

	eff, errs, err := Efficiencies(res.Histograms, res.EntryCounts, res.TotalIntensities, threshold)
	if err != nil {
		return nil, err
	}

	points := make([]Point, len(eff))
	for j := range eff {
		points[j] = Point{Index: j, Value: eff[j], Error: errs[j]}
		if j < len(res.Runs) {
			points[j].RunID = res.Runs[j].ID
		}
	}
	survivors, dropped := FilterFinite(points)
	if len(dropped) > 0 {
		monitoring.Logf("Dropping %d runs with non-finite efficiency: indices %v", len(dropped), dropped)
	}

	g1, g2 := catalog.SubGroups(runType)
	first, second, n := SplitAt(survivors, splitN)

	series := &EfficiencySeries{
		Threshold:    threshold,
		Efficiencies: eff,
		Errors:       errs,
		Survivors:    survivors,
		Dropped:      dropped,
		SplitN:       n,
	}

	for i, grp := range []struct {
		name   catalog.SubGroup
		points []Point
	}{{g1, first}, {g2, second}} {
		stats, err := Stats(grp.name, grp.points)
		if err != nil {
			return nil, err
		}
		series.Groups[i] = EfficiencyGroup{
			Name:   grp.name,
			Points: grp.points,
			Stats:  stats,
			Band:   NewControlBand(stats),
		}
		monitoring.Logf("%s: n=%d mean=%g stddev=%g", grp.name, stats.N, stats.Mean, stats.StdDev)
	}

	all := pointValues(survivors)
	center := stat.Mean(all, nil)
	series.DistributionMin = center - DistributionHalfWidth
	series.DistributionMax = center + DistributionHalfWidth
	for i := range series.Groups {
		series.Groups[i].Distribution = Distribution(pointValues(series.Groups[i].Points),
			series.DistributionMin, series.DistributionMax, DistributionBins)
	}

	return series, nil
}

// Distribution counts values into nbins equal-width bins over [lo, hi).
// Values outside the range are ignored.
func Distribution(values []float64, lo, hi float64, nbins int) []float64 {
	if nbins <= 0 || !(hi > lo) {
		return make([]float64, max(nbins, 0))
	}
	dividers := make([]float64, nbins+1)
	floats.Span(dividers, lo, hi)
	dividers[0], dividers[nbins] = lo, hi

	in := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lo && v < hi {
			in = append(in, v)
		}
	}
	sort.Float64s(in)
	return stat.Histogram(nil, dividers, in, nil)
}

func pointValues(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
