// Package events loads per-run detector amplitudes and beam pulse
// intensities from run files.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/calibration.report/internal/catalog"
)

// ErrDataAccess is returned when a run file is missing, unreadable or lacks
// a required table or column.
var ErrDataAccess = errors.New("data access error")

// Source yields the raw samples of one run.
type Source interface {
	// Amplitudes returns the amplitude samples of detector det in run.
	Amplitudes(ctx context.Context, run catalog.Run, det int) ([]float64, error)
	// PulseIntensities returns the beam pulse-intensity samples of run.
	PulseIntensities(ctx context.Context, run catalog.Run) ([]float64, error)
}

func dataAccessError(run catalog.Run, format string, args ...interface{}) error {
	return fmt.Errorf("%w: run %d (%s): %s", ErrDataAccess, run.ID, run.Path, fmt.Sprintf(format, args...))
}

// MemorySource serves fixed samples keyed by run id. It is intended for
// tests and for synthetic runs.
type MemorySource struct {
	// Amps maps run id -> detector id -> amplitudes.
	Amps map[int]map[int][]float64
	// Pulses maps run id -> pulse intensities.
	Pulses map[int][]float64
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		Amps:   make(map[int]map[int][]float64),
		Pulses: make(map[int][]float64),
	}
}

// AddRun registers the samples of one run for detector det.
func (m *MemorySource) AddRun(runID, det int, amps, pulses []float64) {
	if m.Amps[runID] == nil {
		m.Amps[runID] = make(map[int][]float64)
	}
	m.Amps[runID][det] = amps
	m.Pulses[runID] = pulses
}

// Amplitudes implements Source.
func (m *MemorySource) Amplitudes(ctx context.Context, run catalog.Run, det int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	byDet, ok := m.Amps[run.ID]
	if !ok {
		return nil, dataAccessError(run, "no such run")
	}
	amps := byDet[det]
	out := make([]float64, len(amps))
	copy(out, amps)
	return out, nil
}

// PulseIntensities implements Source.
func (m *MemorySource) PulseIntensities(ctx context.Context, run catalog.Run) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pulses, ok := m.Pulses[run.ID]
	if !ok {
		return nil, dataAccessError(run, "no such run")
	}
	out := make([]float64, len(pulses))
	copy(out, pulses)
	return out, nil
}
