// Package reduce turns per-run detector samples into the per-run scalars
// (efficiency, peak position) and group statistics plotted by the
// calibration reports.
package reduce

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"gonum.org/v1/gonum/floats"
)

// BuildOptions configures histogram construction.
type BuildOptions struct {
	Detector  int
	Threshold float64
	NBins     int

	// Workers bounds the number of runs processed concurrently. Zero means
	// runtime.GOMAXPROCS(0).
	Workers int
}

// BuildResult holds one entry per run, in catalog order.
type BuildResult struct {
	Runs []catalog.Run

	// Histograms are cut-filtered and scaled by 1/TotalIntensity.
	Histograms []*histogram.Amplitude
	// PeakPositions are bin centres of each cut histogram's maximum bin.
	PeakPositions []float64
	// EntryCounts are the number of samples above threshold.
	EntryCounts      []int
	TotalIntensities []float64
}

// Len returns the number of runs.
func (r *BuildResult) Len() int { return len(r.Runs) }

// TotalIntensity reduces a run's pulse-intensity samples to the total
// incident-particle count.
func TotalIntensity(pulses []float64) float64 {
	return floats.Sum(pulses)
}

// Build produces one normalised, threshold-cut amplitude histogram per run.
// Runs are processed concurrently and collected back into catalog order.
// The first failing run aborts the build.
func Build(ctx context.Context, src events.Source, runs []catalog.Run, opts BuildOptions) (*BuildResult, error) {
	if opts.NBins <= 0 {
		return nil, fmt.Errorf("nbins must be positive, got %d", opts.NBins)
	}

	monitoring.Logf("Building amplitude histograms")
	monitoring.Logf("For DETECTOR: %d", opts.Detector)
	monitoring.Logf("With amplitude threshold: %d", int(opts.Threshold))
	monitoring.Logf("Processing %d runs: %v", len(runs), runIDs(runs))

	res := &BuildResult{
		Runs:             runs,
		Histograms:       make([]*histogram.Amplitude, len(runs)),
		PeakPositions:    make([]float64, len(runs)),
		EntryCounts:      make([]int, len(runs)),
		TotalIntensities: make([]float64, len(runs)),
	}

	err := fanOut(ctx, len(runs), opts.Workers, func(ctx context.Context, i int) error {
		run := runs[i]
		amps, total, err := loadRun(ctx, src, run, opts.Detector)
		if err != nil {
			return &RunError{RunID: run.ID, Index: i, Err: err}
		}

		h, err := histogram.NewDefault(opts.NBins)
		if err != nil {
			return err
		}
		entries := 0
		for _, a := range amps {
			if a > opts.Threshold {
				h.Fill(a)
				entries++
			}
		}

		// Peak position is scale invariant; take it before normalising.
		peak := h.BinCenter(h.MaximumBin())
		h.Scale(1 / total)

		res.Histograms[i] = h
		res.PeakPositions[i] = peak
		res.EntryCounts[i] = entries
		res.TotalIntensities[i] = total
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.Logf("MAX_BIN %v", res.PeakPositions)
	return res, nil
}

// BuildSpectra builds full (uncut) amplitude histograms, each scaled by
// 1/TotalIntensity, for runs[first:last]. It is a diagnostic for inspecting
// raw spectra of suspicious runs.
func BuildSpectra(ctx context.Context, src events.Source, runs []catalog.Run, first, last int, opts BuildOptions) ([]*histogram.Amplitude, error) {
	if first < 0 || last > len(runs) || first >= last {
		return nil, fmt.Errorf("invalid run range [%d, %d) for %d runs", first, last, len(runs))
	}
	if opts.NBins <= 0 {
		return nil, fmt.Errorf("nbins must be positive, got %d", opts.NBins)
	}
	monitoring.Logf("Plotting full amplitude histograms of runs from %d to %d", first, last-1)

	selected := runs[first:last]
	out := make([]*histogram.Amplitude, len(selected))
	err := fanOut(ctx, len(selected), opts.Workers, func(ctx context.Context, i int) error {
		run := selected[i]
		amps, total, err := loadRun(ctx, src, run, opts.Detector)
		if err != nil {
			return &RunError{RunID: run.ID, Index: first + i, Err: err}
		}
		h, err := histogram.NewDefault(opts.NBins)
		if err != nil {
			return err
		}
		h.FillAll(amps)
		h.Scale(1 / total)
		out[i] = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadRun(ctx context.Context, src events.Source, run catalog.Run, det int) ([]float64, float64, error) {
	amps, err := src.Amplitudes(ctx, run, det)
	if err != nil {
		return nil, 0, err
	}
	pulses, err := src.PulseIntensities(ctx, run)
	if err != nil {
		return nil, 0, err
	}
	total := TotalIntensity(pulses)
	if total == 0 {
		return nil, 0, ErrZeroIntensity
	}
	return amps, total, nil
}

// fanOut calls fn for every index in [0, n) using at most workers
// goroutines. fn must only write to index-addressed state. On the first
// error the shared context is cancelled and that error is returned.
func fanOut(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	jobs := make(chan int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if err := fn(ctx, i); err != nil {
					mu.Lock()
					if firstErr == nil || isCancellation(firstErr) && !isCancellation(err) {
						firstErr = err
					}
					mu.Unlock()
					cancel()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func runIDs(runs []catalog.Run) []int {
	ids := make([]int, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
