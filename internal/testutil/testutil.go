// Package testutil provides shared test fixtures: SQLite run files on disk
// and the run configuration that points at them.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/stretchr/testify/require"
)

// RunSuffix is the extension of run files written by WriteRuns.
const RunSuffix = ".sqlite"

// RunSet is a directory of run files named Prefix + id + RunSuffix.
type RunSet struct {
	Dir    string
	Prefix string
	IDs    []int
}

// Amplitudes returns n deterministic amplitudes in [lo, lo+span). Different
// seeds give different permutations of the same values.
func Amplitudes(n int, lo float64, span, seed int) []float64 {
	out := make([]float64, n)
	for k := range out {
		out[k] = lo + float64((k*53+seed*17)%span)
	}
	return out
}

// WriteRuns writes one run file per id into dir with data(id) as content.
// An id for which data returns nil amplitudes and pulses is skipped, which
// leaves that run missing on disk.
func WriteRuns(t testing.TB, dir string, ids []int, data func(id int) events.RunData) RunSet {
	t.Helper()
	rs := RunSet{Dir: dir, Prefix: filepath.Join(dir, "run_"), IDs: ids}
	for _, id := range ids {
		d := data(id)
		if d.Amplitudes == nil && d.Pulses == nil {
			continue
		}
		require.NoError(t, events.WriteRunFile(context.Background(), rs.Path(id), events.DefaultSchema, d))
	}
	return rs
}

// Path returns the run file path of id.
func (rs RunSet) Path(id int) string {
	return rs.Prefix + strconv.Itoa(id) + RunSuffix
}

// WriteConfig writes runs.cmnd into the run directory with the prefix and
// suffix keys set, plus values, and returns its path.
func (rs RunSet) WriteConfig(t testing.TB, values map[string]string) string {
	t.Helper()
	all := map[string]string{"prefix": rs.Prefix, "suffix": RunSuffix}
	for k, v := range values {
		all[k] = v
	}
	var buf bytes.Buffer
	require.NoError(t, config.New("test runs", all).WriteCmnd(&buf))

	path := filepath.Join(rs.Dir, "runs.cmnd")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}
