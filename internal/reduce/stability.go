package reduce

import (
	"fmt"
	"math"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/monitoring"
)

// StabilityGroup is one sub-group of the stability series.
type StabilityGroup struct {
	Name   catalog.SubGroup
	Points []Point
}

// StabilitySeries is the output of ReduceStability.
type StabilitySeries struct {
	Positions []float64
	// QuantizationError is the uniform-quantization error of one bin,
	// identical for every run.
	QuantizationError float64
	SplitN            int
	Groups            [2]StabilityGroup
}

// QuantizationError returns (domainMax/nbins)/sqrt(12).
func QuantizationError(domainMax float64, nbins int) float64 {
	return (domainMax / float64(nbins)) / math.Sqrt(12)
}

// ReduceStability attaches the quantization error to each run's peak
// position and splits the series at splitN for two-colour rendering.
// runIDs may be nil.
func ReduceStability(peaks []float64, nbins int, domainMax float64, runType config.RunType, splitN int, runIDs []int) (*StabilitySeries, error) {
	if nbins <= 0 {
		return nil, fmt.Errorf("nbins must be positive, got %d", nbins)
	}
	monitoring.Section("Building stability graph: position of maximum amplitude over the runs")

	qerr := QuantizationError(domainMax, nbins)
	points := make([]Point, len(peaks))
	for i, p := range peaks {
		points[i] = Point{Index: i, Value: p, Error: qerr}
		if i < len(runIDs) {
			points[i].RunID = runIDs[i]
		}
	}

	g1, g2 := catalog.SubGroups(runType)
	first, second, n := SplitAt(points, splitN)

	positions := make([]float64, len(peaks))
	copy(positions, peaks)

	return &StabilitySeries{
		Positions:         positions,
		QuantizationError: qerr,
		SplitN:            n,
		Groups: [2]StabilityGroup{
			{Name: g1, Points: first},
			{Name: g2, Points: second},
		},
	}, nil
}
