package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Canvas size of every PNG artifact.
const (
	pngWidth  = 12 * vg.Inch
	pngHeight = 7.5 * vg.Inch
)

// errorPoints pairs coordinates with symmetric y errors for YErrorBars.
type errorPoints struct {
	plotter.XYs
	plotter.YErrors
}

func newErrorPoints(points []reduce.Point) errorPoints {
	ep := errorPoints{
		XYs:     make(plotter.XYs, len(points)),
		YErrors: make(plotter.YErrors, len(points)),
	}
	for i, p := range points {
		ep.XYs[i] = plotter.XY{X: float64(p.Index), Y: p.Value}
		ep.YErrors[i].Low = p.Error
		ep.YErrors[i].High = p.Error
	}
	return ep
}

// addGroupSeries draws a sub-group as connected markers with error bars.
func addGroupSeries(p *plot.Plot, name string, points []reduce.Point, c color.Color) error {
	if len(points) == 0 {
		return nil
	}
	ep := newErrorPoints(points)

	line, markers, err := plotter.NewLinePoints(ep.XYs)
	if err != nil {
		return fmt.Errorf("%s series: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	markers.GlyphStyle.Color = c
	markers.GlyphStyle.Shape = draw.CircleGlyph{}
	markers.GlyphStyle.Radius = vg.Points(3)

	bars, err := plotter.NewYErrorBars(ep)
	if err != nil {
		return fmt.Errorf("%s error bars: %w", name, err)
	}
	bars.LineStyle.Color = c
	bars.CapWidth = vg.Points(4)

	p.Add(line, markers, bars)
	p.Legend.Add(name, line, markers)
	return nil
}

// addHorizontal draws y = v over [x0, x1].
func addHorizontal(p *plot.Plot, x0, x1, v float64, dashed bool) error {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: v}, {X: x1, Y: v}})
	if err != nil {
		return err
	}
	l.Color = controlColor
	if dashed {
		l.Width = vg.Points(1)
		l.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	} else {
		l.Width = vg.Points(2)
	}
	p.Add(l)
	return nil
}

func configureLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func thresholdLabel(threshold float64) string {
	return fmt.Sprintf("Threshold = %d channels", int(threshold))
}

// groupSpans returns the x ranges over which each group's control lines are
// drawn: [0, start of group 2) and [start of group 2, total).
func groupSpans(groups [2][]reduce.Point, total int) [2][2]float64 {
	boundary := float64(total)
	if len(groups[1]) > 0 {
		boundary = float64(groups[1][0].Index)
	} else if n := len(groups[0]); n > 0 {
		boundary = float64(groups[0][n-1].Index + 1)
	}
	return [2][2]float64{{0, boundary}, {boundary, float64(total)}}
}

func efficiencyPlot(det int, runType config.RunType, s *reduce.EfficiencySeries) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Efficiency detector %d - %s", det, runType)
	p.X.Label.Text = "Run"
	p.Y.Label.Text = "Efficiency (Counts / N protons)"

	for i, g := range s.Groups {
		if err := addGroupSeries(p, string(g.Name), g.Points, groupColors[i]); err != nil {
			return nil, err
		}
	}

	spans := groupSpans([2][]reduce.Point{s.Groups[0].Points, s.Groups[1].Points}, len(s.Efficiencies))
	for i, g := range s.Groups {
		x0, x1 := spans[i][0], spans[i][1]
		if err := addHorizontal(p, x0, x1, g.Band.Center, false); err != nil {
			return nil, err
		}
		if err := addHorizontal(p, x0, x1, g.Band.Upper, true); err != nil {
			return nil, err
		}
		if err := addHorizontal(p, x0, x1, g.Band.Lower, true); err != nil {
			return nil, err
		}
	}

	p.Legend.Add(thresholdLabel(s.Threshold))
	configureLegend(p)
	p.X.Min = 0
	p.X.Max = float64(len(s.Efficiencies))
	return p, nil
}

func distributionPlot(det int, g reduce.EfficiencyGroup, lo, hi float64, c color.Color) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Efficiency distribution detector %d - %s", det, g.Name)
	p.X.Label.Text = "Efficiency (Counts / N protons)"
	p.Y.Label.Text = "Entries"

	n := len(g.Distribution)
	if n == 0 {
		return p
	}
	width := (hi - lo) / float64(n)
	bins := make([]plotter.HistogramBin, n)
	for i, count := range g.Distribution {
		bins[i] = plotter.HistogramBin{
			Min:    lo + float64(i)*width,
			Max:    lo + float64(i+1)*width,
			Weight: count,
		}
	}
	h := &plotter.Histogram{Bins: bins, Width: width, LineStyle: plotter.DefaultLineStyle}
	h.LineStyle.Color = c
	p.Add(h)
	p.Legend.Add(fmt.Sprintf("%s: mean %.4g, std dev %.3g", g.Name, g.Stats.Mean, g.Stats.StdDev), h)
	configureLegend(p)
	p.X.Min, p.X.Max = lo, hi
	return p
}

// writeDistributionPNG draws the two group distributions side by side.
func writeDistributionPNG(w io.Writer, det int, s *reduce.EfficiencySeries) error {
	row := make([]*plot.Plot, len(s.Groups))
	for i, g := range s.Groups {
		row[i] = distributionPlot(det, g, s.DistributionMin, s.DistributionMax, groupColors[i])
	}
	row[len(row)-1].Legend.Add(thresholdLabel(s.Threshold))

	img := vgimg.New(pngWidth, pngHeight)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      len(row),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(4),
		PadBottom: vg.Points(4),
		PadLeft:   vg.Points(4),
		PadRight:  vg.Points(4),
	}
	canvases := plot.Align([][]*plot.Plot{row}, tiles, dc)
	for i, p := range row {
		p.Draw(canvases[0][i])
	}
	_, err := vgimg.PngCanvas{Canvas: img}.WriteTo(w)
	return err
}

func stabilityPlot(det int, runType config.RunType, s *reduce.StabilitySeries) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Position of maximum amplitude detector %d - %s", det, runType)
	p.X.Label.Text = "Run"
	p.Y.Label.Text = "Amplitude (channels)"

	for i, g := range s.Groups {
		if err := addGroupSeries(p, string(g.Name), g.Points, groupColors[i]); err != nil {
			return nil, err
		}
	}
	configureLegend(p)
	p.X.Min = 0
	p.X.Max = float64(len(s.Positions))
	return p, nil
}

// spectrumXYs samples a histogram at its bin centres.
func spectrumXYs(h *histogram.Amplitude) plotter.XYs {
	xys := make(plotter.XYs, h.NBins())
	for i := range xys {
		xys[i] = plotter.XY{X: h.BinCenter(i), Y: h.BinContent(i)}
	}
	return xys
}

// SpectrumLabel is the legend entry of one run in the spectra overlay.
func SpectrumLabel(run catalog.Run, index int) string {
	return fmt.Sprintf("run 121%d : %d", run.ID, index)
}

func spectraPlot(det int, runType config.RunType, runs []catalog.Run, first int, hists []*histogram.Amplitude) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Amplitudes detector %d - %s", det, runType)
	p.X.Label.Text = "Amplitude (channels)"
	p.Y.Label.Text = "Entries / N protons"

	colors := spectrumColors(len(hists))
	for i, h := range hists {
		l, err := plotter.NewLine(spectrumXYs(h))
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", runs[i].ID, err)
		}
		l.StepStyle = plotter.MidStep
		l.Color = colors[i]
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(SpectrumLabel(runs[i], first+i), l)
	}
	configureLegend(p)
	p.X.Min = histogram.DomainMin
	p.X.Max = histogram.DomainMax
	if math.IsInf(p.Y.Min, 0) {
		p.Y.Min, p.Y.Max = 0, 1
	}
	return p, nil
}

func writePNG(p *plot.Plot) func(io.Writer) error {
	return func(w io.Writer) error {
		wt, err := p.WriterTo(pngWidth, pngHeight, "png")
		if err != nil {
			return err
		}
		_, err = wt.WriteTo(w)
		return err
	}
}
