package histogram

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidArguments(t *testing.T) {
	testCases := []struct {
		name     string
		nbins    int
		min, max float64
	}{
		{"zero_bins", 0, 0, 100},
		{"negative_bins", -3, 0, 100},
		{"empty_domain", 10, 5, 5},
		{"inverted_domain", 10, 10, 5},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.nbins, tc.min, tc.max)
			assert.Error(t, err)
		})
	}
}

func TestFill_DropsOutOfDomain(t *testing.T) {
	h, err := NewDefault(300)
	require.NoError(t, err)

	h.FillAll([]float64{-1, 0, 100, 44999.9, 45000, 50000, math.NaN()})

	assert.Equal(t, 3, h.Entries())
	assert.InDelta(t, 3.0, h.Sum(), 1e-12)
	assert.Equal(t, 2.0, h.BinContent(0))
	assert.Equal(t, 1.0, h.BinContent(299))
}

func TestFindBin_MonotonicAndClamped(t *testing.T) {
	h, err := NewDefault(300)
	require.NoError(t, err)

	assert.Equal(t, 0, h.FindBin(-500))
	assert.Equal(t, 0, h.FindBin(0))
	assert.Equal(t, 0, h.FindBin(149.99))
	assert.Equal(t, 1, h.FindBin(150))
	assert.Equal(t, 6, h.FindBin(1000))
	assert.Equal(t, 299, h.FindBin(45000))
	assert.Equal(t, 299, h.FindBin(1e9))

	prev := -1
	for v := -1000.0; v <= 50000; v += 37.5 {
		b := h.FindBin(v)
		assert.GreaterOrEqual(t, b, prev, "FindBin decreased at %g", v)
		assert.GreaterOrEqual(t, b, 0)
		assert.LessOrEqual(t, b, h.NBins()-1)
		prev = b
	}
}

func TestIntegral_InclusiveAndClamped(t *testing.T) {
	h, err := New(10, 0, 10)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		for j := 0; j <= i; j++ {
			h.Fill(float64(i) + 0.5)
		}
	}

	assert.Equal(t, 1.0, h.Integral(0, 0))
	assert.Equal(t, 1.0+2+3, h.Integral(0, 2))
	assert.Equal(t, 55.0, h.Integral(-5, 50))
	assert.Equal(t, 0.0, h.Integral(5, 4))
	assert.Equal(t, 0.0, h.Integral(20, 30))
}

func TestMaximumBin_FirstOccurrence(t *testing.T) {
	h, err := New(5, 0, 5)
	require.NoError(t, err)
	h.FillAll([]float64{1.5, 1.5, 3.5, 3.5, 4.5})

	assert.Equal(t, 1, h.MaximumBin())
	assert.Equal(t, 1.5, h.BinCenter(h.MaximumBin()))

	empty, err := New(5, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.MaximumBin())
}

func TestScale_SumMatchesEntriesOverIntensity(t *testing.T) {
	h, err := NewDefault(150)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		h.Fill(float64(i) * 41.3)
	}
	entries := h.Entries()
	assert.InDelta(t, float64(entries), h.Sum(), 1e-9)

	const intensity = 3.7e12
	peakBefore := h.MaximumBin()
	h.Scale(1 / intensity)

	assert.InDelta(t, float64(entries)/intensity, h.Sum(), 1e-20)
	assert.Equal(t, peakBefore, h.MaximumBin())
	assert.Equal(t, entries, h.Entries(), "Scale must not change the entry count")
}

func TestCounts_ReturnsCopy(t *testing.T) {
	h, err := New(2, 0, 2)
	require.NoError(t, err)
	h.Fill(0.5)

	c := h.Counts()
	c[0] = 99
	assert.Equal(t, 1.0, h.BinContent(0))
}
