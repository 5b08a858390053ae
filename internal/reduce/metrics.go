package reduce

import "math"

// RunMetrics are the per-run scalars of one invocation. Efficiency and Error
// are NaN when only the stability metric was computed.
type RunMetrics struct {
	Index          int
	RunID          int
	EntryCount     int
	TotalIntensity float64
	Efficiency     float64
	Error          float64
	PeakPosition   float64
}

// Metrics flattens a build result and, when eff is non-nil, its efficiency
// series into one row per run in catalog order.
func Metrics(res *BuildResult, eff *EfficiencySeries) []RunMetrics {
	out := make([]RunMetrics, res.Len())
	for i, run := range res.Runs {
		m := RunMetrics{
			Index:          i,
			RunID:          run.ID,
			EntryCount:     res.EntryCounts[i],
			TotalIntensity: res.TotalIntensities[i],
			Efficiency:     math.NaN(),
			Error:          math.NaN(),
			PeakPosition:   res.PeakPositions[i],
		}
		if eff != nil && i < len(eff.Efficiencies) {
			m.Efficiency = eff.Efficiencies[i]
			m.Error = eff.Errors[i]
		}
		out[i] = m
	}
	return out
}
