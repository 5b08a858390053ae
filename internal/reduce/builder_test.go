package reduce

import (
	"context"
	"errors"
	"testing"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func runsFor(ids ...int) []catalog.Run {
	runs := make([]catalog.Run, len(ids))
	for i, id := range ids {
		runs[i] = catalog.Run{ID: id}
	}
	return runs
}

func TestTotalIntensity(t *testing.T) {
	assert.Equal(t, 0.0, TotalIntensity(nil))
	assert.Equal(t, 6.0, TotalIntensity([]float64{1, 2, 3}))
}

func TestBuild_SingleRunScenario(t *testing.T) {
	src := events.NewMemorySource()
	src.AddRun(1, 2, repeat(2000, 10), []float64{4, 6})

	res, err := Build(context.Background(), src, runsFor(1), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())

	assert.Equal(t, 10, res.EntryCounts[0])
	assert.Equal(t, 10.0, res.TotalIntensities[0])

	h := res.Histograms[0]
	assert.InDelta(t, 1.0, h.Integral(h.FindBin(1000), h.FindBin(45000)), 1e-12)
	assert.InDelta(t, 1.0, h.Sum(), 1e-12)

	// 2000 falls in bin 13 ([1950, 2100)).
	assert.Equal(t, 2025.0, res.PeakPositions[0])
}

func TestBuild_ThresholdIsStrict(t *testing.T) {
	src := events.NewMemorySource()
	src.AddRun(1, 2, []float64{500, 1000, 1000, 1000.5, 3000}, []float64{1})

	res, err := Build(context.Background(), src, runsFor(1), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	require.NoError(t, err)

	assert.Equal(t, 2, res.EntryCounts[0])
	assert.InDelta(t, 2.0, res.Histograms[0].Sum(), 1e-12)
	// The cut histogram keeps the full domain and binning.
	assert.Equal(t, 300, res.Histograms[0].NBins())
	assert.Equal(t, 0.0, res.Histograms[0].BinContent(3))
}

func TestBuild_PeakFromCutHistogram(t *testing.T) {
	src := events.NewMemorySource()
	// The uncut peak sits below the threshold; the cut peak is at 5000.
	amps := append(repeat(200, 50), repeat(5000, 5)...)
	amps = append(amps, 9000)
	src.AddRun(1, 2, amps, []float64{1e3})

	res, err := Build(context.Background(), src, runsFor(1), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	require.NoError(t, err)

	h := res.Histograms[0]
	assert.Equal(t, h.BinCenter(h.FindBin(5000)), res.PeakPositions[0])
}

func TestBuild_SumInvariantsPerRun(t *testing.T) {
	src := events.NewMemorySource()
	intensities := []float64{2e12, 5e11, 7.5e12}
	for i, total := range intensities {
		amps := make([]float64, 0, 500)
		for k := 0; k < 500; k++ {
			amps = append(amps, float64((k*97+i*13)%44000)+500)
		}
		src.AddRun(i+1, 3, amps, []float64{total / 2, total / 2})
	}

	res, err := Build(context.Background(), src, runsFor(1, 2, 3), BuildOptions{Detector: 3, Threshold: 800, NBins: 150, Workers: 2})
	require.NoError(t, err)

	for j := range intensities {
		expected := float64(res.EntryCounts[j]) / res.TotalIntensities[j]
		assert.InEpsilon(t, expected, res.Histograms[j].Sum(), 1e-9, "run index %d", j)
		assert.InDelta(t, intensities[j], res.TotalIntensities[j], 1)
	}
}

func TestBuild_PreservesCatalogOrder(t *testing.T) {
	src := events.NewMemorySource()
	ids := []int{40, 10, 30, 20, 50, 60, 70, 80}
	for _, id := range ids {
		src.AddRun(id, 2, repeat(float64(id)*100+10, id), []float64{1})
	}

	res, err := Build(context.Background(), src, runsFor(ids...), BuildOptions{Detector: 2, Threshold: 0, NBins: 450, Workers: 4})
	require.NoError(t, err)

	for j, id := range ids {
		assert.Equal(t, id, res.Runs[j].ID)
		assert.Equal(t, id, res.EntryCounts[j], "index %d", j)
		assert.Equal(t, float64(id)*100+50, res.PeakPositions[j], "index %d", j)
	}
}

func TestBuild_ZeroIntensityFails(t *testing.T) {
	src := events.NewMemorySource()
	src.AddRun(1, 2, repeat(2000, 10), []float64{10})
	src.AddRun(2, 2, repeat(2000, 10), []float64{0, 0})
	src.AddRun(3, 2, repeat(2000, 10), []float64{10})

	_, err := Build(context.Background(), src, runsFor(1, 2, 3), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrZeroIntensity))

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 2, runErr.RunID)
	assert.Equal(t, 1, runErr.Index)
}

func TestBuild_DataAccessFails(t *testing.T) {
	src := events.NewMemorySource()
	src.AddRun(1, 2, repeat(2000, 10), []float64{10})

	_, err := Build(context.Background(), src, runsFor(1, 99), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300, Workers: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, events.ErrDataAccess))
	assert.Contains(t, err.Error(), "run 99")
}

func TestBuild_InvalidBins(t *testing.T) {
	_, err := Build(context.Background(), events.NewMemorySource(), runsFor(1), BuildOptions{NBins: 0})
	assert.Error(t, err)
}

func TestBuild_CancelledContext(t *testing.T) {
	src := events.NewMemorySource()
	src.AddRun(1, 2, repeat(2000, 10), []float64{10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, src, runsFor(1), BuildOptions{Detector: 2, Threshold: 1000, NBins: 300})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildSpectra(t *testing.T) {
	src := events.NewMemorySource()
	for id := 1; id <= 4; id++ {
		src.AddRun(id, 2, append(repeat(300, id), repeat(5000, 2)...), []float64{2})
	}
	runs := runsFor(1, 2, 3, 4)

	spectra, err := BuildSpectra(context.Background(), src, runs, 1, 3, BuildOptions{Detector: 2, NBins: 150})
	require.NoError(t, err)
	require.Len(t, spectra, 2)

	// Uncut: low-amplitude samples are kept.
	assert.InDelta(t, 2.0/2, spectra[0].BinContent(spectra[0].FindBin(300)), 1e-12)
	assert.InDelta(t, 3.0/2, spectra[1].BinContent(spectra[1].FindBin(300)), 1e-12)
	assert.InDelta(t, (3.0+2)/2, spectra[1].Sum(), 1e-12)

	for _, bad := range [][2]int{{-1, 2}, {2, 2}, {3, 1}, {0, 5}} {
		_, err := BuildSpectra(context.Background(), src, runs, bad[0], bad[1], BuildOptions{Detector: 2, NBins: 150})
		assert.Error(t, err, "range %v", bad)
	}
}

func TestFanOut_ReportsFailureNotCancellation(t *testing.T) {
	boom := errors.New("boom")
	err := fanOut(context.Background(), 50, 8, func(ctx context.Context, i int) error {
		if i == 7 {
			return boom
		}
		return ctx.Err()
	})
	assert.ErrorIs(t, err, boom)

	visited := make([]bool, 20)
	err = fanOut(context.Background(), 20, 3, func(ctx context.Context, i int) error {
		visited[i] = true
		return nil
	})
	require.NoError(t, err)
	for i, v := range visited {
		assert.True(t, v, "index %d not visited", i)
	}

	assert.NoError(t, fanOut(context.Background(), 0, 4, func(context.Context, int) error {
		return errors.New("unreachable")
	}))
}
