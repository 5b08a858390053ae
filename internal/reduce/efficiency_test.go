package reduce

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildUniform builds n runs that each hold count samples at amp with the
// given total intensity.
func buildUniform(t *testing.T, n, count int, amp, total float64) *BuildResult {
	t.Helper()
	src := events.NewMemorySource()
	ids := make([]int, n)
	for i := 0; i < n; i++ {
		ids[i] = 100 + i
		src.AddRun(ids[i], 2, repeat(amp, count), []float64{total})
	}
	res, err := Build(context.Background(), src, runsFor(ids...), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	require.NoError(t, err)
	return res
}

func TestEfficiencies_ScenarioAndError(t *testing.T) {
	res := buildUniform(t, 1, 10, 2000, 10)

	eff, errs, err := Efficiencies(res.Histograms, res.EntryCounts, res.TotalIntensities, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, eff[0], 1e-12)
	assert.InDelta(t, math.Sqrt(10)/10, errs[0], 1e-12)
}

func TestEfficiencies_ScaleOrderIndependent(t *testing.T) {
	raw, err := histogram.NewDefault(300)
	require.NoError(t, err)
	scaled, err := histogram.NewDefault(300)
	require.NoError(t, err)
	for k := 0; k < 2000; k++ {
		v := float64(k*53%45000) + 0.25
		raw.Fill(v)
		scaled.Fill(v)
	}
	const total = 3.3e12
	scaled.Scale(1 / total)

	lo, hi := raw.FindBin(1234), raw.FindBin(45000)
	unscaledThenDivided := raw.Integral(lo, hi) / total

	eff, _, err := Efficiencies([]*histogram.Amplitude{scaled}, []int{raw.Entries()}, []float64{total}, 1234)
	require.NoError(t, err)
	assert.InEpsilon(t, unscaledThenDivided, eff[0], 1e-12)
}

func TestEfficiencies_LengthMismatch(t *testing.T) {
	_, _, err := Efficiencies(make([]*histogram.Amplitude, 2), []int{1}, []float64{1, 2}, 0)
	assert.Error(t, err)
}

func TestReduceEfficiency_IdenticalValuesGiveZeroWidthBand(t *testing.T) {
	res := buildUniform(t, 6, 10, 2000, 10)

	series, err := ReduceEfficiency(res, config.SampleIn, 1000, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, series.SplitN)
	for _, g := range series.Groups {
		assert.InDelta(t, 1.0, g.Stats.Mean, 1e-12)
		assert.Equal(t, 0.0, g.Stats.StdDev)
		assert.Equal(t, g.Band.Center, g.Band.Upper)
		assert.Equal(t, g.Band.Center, g.Band.Lower)
	}
	assert.Equal(t, catalog.Sin1, series.Groups[0].Name)
	assert.Equal(t, catalog.Sin2, series.Groups[1].Name)
	assert.Len(t, series.Groups[0].Points, 4)
	assert.Len(t, series.Groups[1].Points, 2)
}

func TestReduceEfficiency_NaNRunShiftsSplit(t *testing.T) {
	res := buildUniform(t, 5, 10, 2000, 10)
	// A corrupted run whose intensity slipped through as NaN.
	res.TotalIntensities[1] = math.NaN()
	res.Histograms[1].Scale(math.NaN())

	series, err := ReduceEfficiency(res, config.SampleOut, 1000, 2)
	require.NoError(t, err)

	assert.Equal(t, []int{1}, series.Dropped)
	require.Len(t, series.Survivors, 4)
	assert.Equal(t, 2, series.SplitN)
	assert.Equal(t, len(series.Survivors), series.SplitN+len(series.Groups[1].Points))

	idx := func(ps []Point) []int {
		out := make([]int, len(ps))
		for i, p := range ps {
			out[i] = p.Index
		}
		return out
	}
	// The boundary is measured against survivors: run index 2 moves into
	// the first group.
	if diff := cmp.Diff([]int{0, 2}, idx(series.Groups[0].Points)); diff != "" {
		t.Errorf("group 1 indices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 4}, idx(series.Groups[1].Points)); diff != "" {
		t.Errorf("group 2 indices mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, catalog.Sout1, series.Groups[0].Name)
	assert.Equal(t, 102, series.Groups[0].Points[1].RunID)
}

func TestReduceEfficiency_EmptyGroup(t *testing.T) {
	res := buildUniform(t, 3, 10, 2000, 10)

	_, err := ReduceEfficiency(res, config.SampleIn, 1000, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyGroup))

	var groupErr *GroupError
	require.True(t, errors.As(err, &groupErr))
	assert.Equal(t, catalog.Sin2, groupErr.Group)

	_, err = ReduceEfficiency(res, config.SampleIn, 1000, 0)
	assert.True(t, errors.Is(err, ErrEmptyGroup))
}

func TestStats_PopulationStdDev(t *testing.T) {
	points := []Point{{Value: 2}, {Value: 4}, {Value: 4}, {Value: 4}, {Value: 5}, {Value: 5}, {Value: 7}, {Value: 9}}
	s, err := Stats(catalog.Sin1, points)
	require.NoError(t, err)
	assert.Equal(t, 8, s.N)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, 2.0, s.StdDev, 1e-12)

	band := NewControlBand(s)
	assert.InDelta(t, 9.0, band.Upper, 1e-12)
	assert.InDelta(t, 1.0, band.Lower, 1e-12)
}

func TestFilterFiniteAndSplit(t *testing.T) {
	points := []Point{
		{Index: 0, Value: 1, Error: 0.1},
		{Index: 1, Value: math.Inf(1), Error: 0.1},
		{Index: 2, Value: 2, Error: math.NaN()},
		{Index: 3, Value: 3, Error: 0.1},
		{Index: 4, Value: math.Inf(-1), Error: 0.1},
	}
	kept, dropped := FilterFinite(points)
	assert.Equal(t, []int{1, 2, 4}, dropped)
	require.Len(t, kept, 2)

	for _, n := range []int{-3, 0, 1, 2, 10} {
		a, b, eff := SplitAt(kept, n)
		assert.Equal(t, len(kept), eff+len(b), "n=%d", n)
		assert.Len(t, a, eff)
	}
}

func TestDistribution(t *testing.T) {
	counts := Distribution([]float64{0.05, 0.15, 0.15, 0.95, 1.0, -0.1, math.NaN()}, 0, 1, 10)
	require.Len(t, counts, 10)
	assert.Equal(t, 1.0, counts[0])
	assert.Equal(t, 2.0, counts[1])
	assert.Equal(t, 1.0, counts[9])

	assert.Equal(t, make([]float64, 5), Distribution([]float64{1}, 3, 3, 5))
}

func TestReduceEfficiency_DistributionCentredOnMean(t *testing.T) {
	res := buildUniform(t, 4, 10, 2000, 1e13)

	series, err := ReduceEfficiency(res, config.SampleIn, 1000, 2)
	require.NoError(t, err)

	mean := 10 / 1e13
	assert.InEpsilon(t, mean-DistributionHalfWidth, series.DistributionMin, 1e-9)
	assert.InEpsilon(t, mean+DistributionHalfWidth, series.DistributionMax, 1e-9)
	for _, g := range series.Groups {
		require.Len(t, g.Distribution, DistributionBins)
		var sum float64
		for _, c := range g.Distribution {
			sum += c
		}
		assert.Equal(t, 2.0, sum)
	}
}
