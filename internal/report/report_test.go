package report

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/events"
	"github.com/banshee-data/calibration.report/internal/fsutil"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/monitoring"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

type fixture struct {
	runs  []catalog.Run
	build *reduce.BuildResult
	eff   *reduce.EfficiencySeries
	stab  *reduce.StabilitySeries
	rows  []reduce.RunMetrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	src := events.NewMemorySource()
	var runs []catalog.Run
	for i := 0; i < 8; i++ {
		id := 40 + i
		amps := make([]float64, 0, 200)
		for k := 0; k < 200; k++ {
			amps = append(amps, float64(1500+(k*37+i*101)%6000))
		}
		src.AddRun(id, 3, amps, []float64{1e12 + float64(i)*1e10})
		runs = append(runs, catalog.Run{ID: id})
	}
	opts := reduce.BuildOptions{Detector: 3, Threshold: 2000, NBins: 150}
	build, err := reduce.Build(context.Background(), src, runs, opts)
	require.NoError(t, err)
	eff, err := reduce.ReduceEfficiency(build, config.SampleIn, opts.Threshold, 5)
	require.NoError(t, err)
	stab, err := reduce.ReduceStability(build.PeakPositions, opts.NBins, histogram.DomainMax, config.SampleIn, 5, []int{40, 41, 42, 43, 44, 45, 46, 47})
	require.NoError(t, err)
	return fixture{runs: runs, build: build, eff: eff, stab: stab, rows: reduce.Metrics(build, eff)}
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		in      string
		want    []Format
		wantErr bool
	}{
		{in: "", want: []Format{PNG}},
		{in: "png", want: []Format{PNG}},
		{in: "PNG, html ,xlsx", want: []Format{PNG, HTML, XLSX}},
		{in: "html,html", want: []Format{HTML}},
		{in: "pdf", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormats(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArtifactNames(t *testing.T) {
	assert.Equal(t, filepath.Join("Efficiency", "Efficiency_singleruns_det3_Sin"), EfficiencyBase(3, config.SampleIn))
	assert.Equal(t, filepath.Join("Efficiency", "EfficiencyHistogram_singleruns_det8_Sout"), EfficiencyHistogramBase(8, config.SampleOut))
	assert.Equal(t, filepath.Join("Stability", "Stability_det1_Sin"), StabilityBase(1, config.SampleIn))
	assert.Equal(t, "Amplitudes_det3_Sin_from5_to10", SpectraBase(3, config.SampleIn, 5, 11))
	assert.Equal(t, "run 12142 : 7", SpectrumLabel(catalog.Run{ID: 42}, 7))
}

func TestRenderer_EfficiencyAllFormats(t *testing.T) {
	fx := newFixture(t)
	mfs := fsutil.NewMemoryFileSystem()
	r := New(mfs, "/out", PNG, HTML, XLSX)

	paths, err := r.Efficiency(3, config.SampleIn, fx.eff, fx.rows)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/out/Efficiency/Efficiency_singleruns_det3_Sin.png",
		"/out/Efficiency/EfficiencyHistogram_singleruns_det3_Sin.png",
		"/out/Efficiency/Efficiency_singleruns_det3_Sin.html",
		"/out/Efficiency/Efficiency_singleruns_det3_Sin.xlsx",
	}, paths)

	for _, p := range paths[:2] {
		data, err := mfs.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), "%s is not a PNG", p)
	}

	html, err := mfs.ReadFile(paths[2])
	require.NoError(t, err)
	assert.Contains(t, string(html), "Efficiency detector 3 - Sin")
	assert.Contains(t, string(html), "Threshold = 2000 channels")

	data, err := mfs.ReadFile(paths[3])
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"Runs", "Groups", "Distribution"}, book.GetSheetList())
	rows, err := book.GetRows("Runs")
	require.NoError(t, err)
	require.Len(t, rows, 1+len(fx.runs))
	assert.Equal(t, "Run", rows[0][1])
	assert.Equal(t, "40", rows[1][1])
	assert.Equal(t, "Sin1", rows[1][2])
	assert.Equal(t, "Sin2", rows[8][2])

	groups, err := book.GetRows("Groups")
	require.NoError(t, err)
	require.Len(t, groups, 3)
	assert.Equal(t, "5", groups[1][1])
	assert.Equal(t, "3", groups[2][1])
}

func TestEfficiencyHTML_ControlBands(t *testing.T) {
	fx := newFixture(t)
	var buf bytes.Buffer
	require.NoError(t, writeEfficiencyHTML(&buf, 3, config.SampleIn, fx.eff))

	html := buf.String()
	assert.Contains(t, html, `"markLine"`)
	for _, name := range []string{"Sin1 mean", "Sin1 upper", "Sin1 lower", "Sin2 mean", "Sin2 upper", "Sin2 lower"} {
		assert.Contains(t, html, name)
	}

	buf.Reset()
	require.NoError(t, writeStabilityHTML(&buf, 3, config.SampleIn, fx.stab))
	assert.NotContains(t, buf.String(), `"markLine"`)
}

func TestBandMarkLines(t *testing.T) {
	band := reduce.ControlBand{Center: 2, Upper: 3, Lower: 1}
	assert.Len(t, bandMarkLines(catalog.Sin1, band, 0, 5), 2)

	band.Upper = math.NaN()
	assert.Nil(t, bandMarkLines(catalog.Sin1, band, 0, 5))
}

func TestRenderer_DefaultFormatIsPNG(t *testing.T) {
	fx := newFixture(t)
	mfs := fsutil.NewMemoryFileSystem()

	paths, err := New(mfs, "/out").Stability(3, config.SampleIn, fx.stab, fx.rows)
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/Stability/Stability_det3_Sin.png"}, paths)
	assert.Equal(t, paths, mfs.Files())
}

func TestRenderer_StabilityXLSX(t *testing.T) {
	fx := newFixture(t)
	mfs := fsutil.NewMemoryFileSystem()

	paths, err := New(mfs, "/out", XLSX, HTML).Stability(3, config.SampleIn, fx.stab, fx.rows)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	html, _ := mfs.ReadFile("/out/Stability/Stability_det3_Sin.html")
	assert.Contains(t, string(html), "Position of maximum amplitude detector 3 - Sin")

	data, err := mfs.ReadFile("/out/Stability/Stability_det3_Sin.xlsx")
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Runs")
	require.NoError(t, err)
	require.Len(t, rows, 9)
	assert.Equal(t, "Sin2", rows[6][2])
}

func TestRenderer_Spectra(t *testing.T) {
	fx := newFixture(t)
	src := events.NewMemorySource()
	for _, run := range fx.runs {
		src.AddRun(run.ID, 3, []float64{100, 200, 5000}, []float64{2})
	}
	hists, err := reduce.BuildSpectra(context.Background(), src, fx.runs, 2, 5, reduce.BuildOptions{Detector: 3, NBins: 150})
	require.NoError(t, err)

	mfs := fsutil.NewMemoryFileSystem()
	paths, err := New(mfs, "/out", PNG, HTML, XLSX).Spectra(3, config.SampleIn, fx.runs[2:5], 2, hists)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/out/Amplitudes_det3_Sin_from2_to4.png",
		"/out/Amplitudes_det3_Sin_from2_to4.html",
		"/out/Amplitudes_det3_Sin_from2_to4.xlsx",
	}, paths)

	html, _ := mfs.ReadFile(paths[1])
	assert.Contains(t, string(html), "run 12142 : 2")
	assert.Contains(t, string(html), "run 12144 : 4")

	_, err = New(mfs, "/out").Spectra(3, config.SampleIn, fx.runs[:1], 0, hists)
	assert.Error(t, err)
}

// failingFS fails to create files with the given suffix.
type failingFS struct {
	*fsutil.MemoryFileSystem
	suffix string
}

func (f failingFS) Create(name string) (io.WriteCloser, error) {
	if strings.HasSuffix(name, f.suffix) {
		return nil, errors.New("disk full")
	}
	return f.MemoryFileSystem.Create(name)
}

func TestRenderer_FailureLeavesNoArtifacts(t *testing.T) {
	fx := newFixture(t)
	mfs := fsutil.NewMemoryFileSystem()
	r := New(failingFS{MemoryFileSystem: mfs, suffix: ".xlsx"}, "/out", PNG, HTML, XLSX)

	_, err := r.Efficiency(3, config.SampleIn, fx.eff, fx.rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, mfs.Files())
}

func TestRenderer_RejectsEscapingNames(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	r := New(mfs, "/out")
	_, err := r.emit([]artifact{{name: "../escape.png", write: func(io.Writer) error { return nil }}})
	assert.Error(t, err)
	assert.Empty(t, mfs.Files())
}
