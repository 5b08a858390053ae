// Package histogram provides the fixed-width amplitude histogram used to
// reduce a run's detector amplitudes into per-run metrics.
package histogram

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Default amplitude domain in ADC channels.
const (
	DomainMin = 0.0
	DomainMax = 45000.0
)

// Amplitude is a fixed-width binned frequency distribution over [Min, Max).
// Bin contents are stored as float64 so that Scale can turn raw counts into
// a density per incident particle without a second representation.
type Amplitude struct {
	min   float64
	max   float64
	width float64
	bins  []float64

	// entries counts the Fill calls that landed in a bin. It is not
	// affected by Scale.
	entries int
}

// New creates an empty histogram with nbins equal-width bins covering
// [min, max).
func New(nbins int, min, max float64) (*Amplitude, error) {
	if nbins <= 0 {
		return nil, fmt.Errorf("nbins must be positive, got %d", nbins)
	}
	if !(max > min) {
		return nil, fmt.Errorf("invalid domain [%g, %g)", min, max)
	}
	return &Amplitude{
		min:   min,
		max:   max,
		width: (max - min) / float64(nbins),
		bins:  make([]float64, nbins),
	}, nil
}

// NewDefault creates an empty histogram over [DomainMin, DomainMax).
func NewDefault(nbins int) (*Amplitude, error) {
	return New(nbins, DomainMin, DomainMax)
}

// NBins returns the number of bins.
func (h *Amplitude) NBins() int { return len(h.bins) }

// BinWidth returns the width of a single bin.
func (h *Amplitude) BinWidth() float64 { return h.width }

// Min returns the lower edge of the domain.
func (h *Amplitude) Min() float64 { return h.min }

// Max returns the upper (exclusive) edge of the domain.
func (h *Amplitude) Max() float64 { return h.max }

// Entries returns the number of values that were filled into a bin.
func (h *Amplitude) Entries() int { return h.entries }

// Fill increments the bin containing v. Values outside [Min, Max) and NaN
// are dropped.
func (h *Amplitude) Fill(v float64) {
	if math.IsNaN(v) || v < h.min || v >= h.max {
		return
	}
	h.bins[h.FindBin(v)]++
	h.entries++
}

// FillAll fills every value in vs.
func (h *Amplitude) FillAll(vs []float64) {
	for _, v := range vs {
		h.Fill(v)
	}
}

// FindBin returns the index of the bin containing v, clamped to
// [0, NBins()-1].
func (h *Amplitude) FindBin(v float64) int {
	if math.IsNaN(v) || v < h.min {
		return 0
	}
	last := len(h.bins) - 1
	idx := math.Floor((v - h.min) / h.width)
	if idx >= float64(last) {
		return last
	}
	return int(idx)
}

// BinCenter returns the centre of bin i.
func (h *Amplitude) BinCenter(i int) float64 {
	return h.min + (float64(i)+0.5)*h.width
}

// BinContent returns the (possibly scaled) content of bin i, or 0 if i is
// out of range.
func (h *Amplitude) BinContent(i int) float64 {
	if i < 0 || i >= len(h.bins) {
		return 0
	}
	return h.bins[i]
}

// Integral sums the contents of bins lo..hi inclusive. Bounds are clamped to
// the valid range; an empty range yields 0.
func (h *Amplitude) Integral(lo, hi int) float64 {
	if lo < 0 {
		lo = 0
	}
	if hi > len(h.bins)-1 {
		hi = len(h.bins) - 1
	}
	if lo > hi {
		return 0
	}
	return floats.Sum(h.bins[lo : hi+1])
}

// Sum returns the total content of all bins.
func (h *Amplitude) Sum() float64 {
	return h.Integral(0, len(h.bins)-1)
}

// MaximumBin returns the index of the first bin holding the maximum content.
func (h *Amplitude) MaximumBin() int {
	return floats.MaxIdx(h.bins)
}

// Scale multiplies every bin by factor in place. All subsequent queries
// operate on the scaled contents.
func (h *Amplitude) Scale(factor float64) {
	floats.Scale(factor, h.bins)
}

// Counts returns a copy of the bin contents.
func (h *Amplitude) Counts() []float64 {
	out := make([]float64, len(h.bins))
	copy(out, h.bins)
	return out
}
