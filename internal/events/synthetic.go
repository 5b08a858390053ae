package events

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Synthetic generates plausible run data: a Gaussian amplitude peak on a
// flat background for each detector, and Gaussian pulse intensities. The
// peak drifts linearly with the run index so stability plots show a trend.
type Synthetic struct {
	Detectors []int
	// Samples is the number of amplitude samples per detector per run.
	Samples int
	// Background is the fraction of samples drawn uniformly over
	// [0, BackgroundMax).
	Background    float64
	BackgroundMax float64

	PeakMean  float64
	PeakSigma float64
	// Drift is the peak shift per run, as a fraction of PeakMean.
	Drift float64

	Pulses         int
	PulseMean      float64
	PulseSigma     float64
	PulseDropout   float64 // fraction of pulses recorded as zero
	EfficiencyJump float64 // relative sample-count change of runs at or after JumpAt
	JumpAt         int
}

// DefaultSynthetic has a peak near 3000 channels and roughly 7e12 protons
// per run.
var DefaultSynthetic = Synthetic{
	Detectors:     []int{1, 2, 3, 4, 7, 8},
	Samples:       5000,
	Background:    0.2,
	BackgroundMax: 40000,
	PeakMean:      3000,
	PeakSigma:     400,
	Drift:         0.002,
	Pulses:        200,
	PulseMean:     3.5e10,
	PulseSigma:    3e9,
	PulseDropout:  0.02,
}

// Generate returns the data of the run at position index, drawing from
// seeded PCG streams so the same seed and index always yield the same run.
func (s Synthetic) Generate(index int, seed uint64) RunData {
	rng := rand.New(rand.NewPCG(seed, uint64(index)))
	data := RunData{Amplitudes: make(map[int][]float64, len(s.Detectors))}

	n := s.Samples
	if s.EfficiencyJump != 0 && index >= s.JumpAt {
		n = int(float64(n) * (1 + s.EfficiencyJump))
	}

	for _, det := range s.Detectors {
		peak := distuv.Normal{
			Mu:    s.PeakMean * (1 + s.Drift*float64(index)) * (1 + 0.05*float64(det%3)),
			Sigma: s.PeakSigma,
			Src:   rng,
		}
		flat := distuv.Uniform{Min: 0, Max: s.BackgroundMax, Src: rng}

		amps := make([]float64, n)
		for i := range amps {
			if rng.Float64() < s.Background {
				amps[i] = flat.Rand()
			} else {
				amps[i] = peak.Rand()
			}
		}
		data.Amplitudes[det] = amps
	}

	pulse := distuv.Normal{Mu: s.PulseMean, Sigma: s.PulseSigma, Src: rng}
	data.Pulses = make([]float64, s.Pulses)
	for i := range data.Pulses {
		if rng.Float64() < s.PulseDropout {
			continue
		}
		data.Pulses[i] = pulse.Rand()
	}
	return data
}
