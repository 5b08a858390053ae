package report

import (
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/config"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

func scatterPoints(points []reduce.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, len(points))
	for i, p := range points {
		data[i] = opts.ScatterData{Value: []interface{}{p.Index, p.Value, p.Error, p.RunID}}
	}
	return data
}

func groupScatter(title, subtitle, yName string, total int, names [2]catalog.SubGroup, points [2][]reduce.Point, extra [2][]charts.SeriesOpts) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "750px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Min: 0, Max: total, Name: "Run", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName, NameLocation: "middle", NameGap: 60}),
	)
	for i := range names {
		series := append([]charts.SeriesOpts{
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(groupColors[i])}),
		}, extra[i]...)
		scatter.AddSeries(string(names[i]), scatterPoints(points[i]), series...)
	}
	return scatter
}

// bandMarkLines draws a group's control band as mark lines over [x0, x1]:
// a solid centre line and dashed bounds.
func bandMarkLines(name catalog.SubGroup, band reduce.ControlBand, x0, x1 float64) []charts.SeriesOpts {
	segment := func(label string, y float64) opts.MarkLineNameCoordItem {
		return opts.MarkLineNameCoordItem{
			Name:        fmt.Sprintf("%s %s", name, label),
			Coordinate0: []interface{}{x0, y},
			Coordinate1: []interface{}{x1, y},
		}
	}
	for _, y := range []float64{band.Center, band.Upper, band.Lower} {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil
		}
	}
	return []charts.SeriesOpts{
		charts.WithMarkLineNameCoordItemOpts(
			segment("mean", band.Center),
			segment("upper", band.Upper),
			segment("lower", band.Lower),
		),
		charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
			Symbol:    []string{"none", "none"},
			LineStyle: &opts.LineStyle{Type: "dashed", Width: 1},
		}),
	}
}

func writeEfficiencyHTML(w io.Writer, det int, runType config.RunType, s *reduce.EfficiencySeries) error {
	names := [2]catalog.SubGroup{s.Groups[0].Name, s.Groups[1].Name}
	points := [2][]reduce.Point{s.Groups[0].Points, s.Groups[1].Points}
	subtitle := fmt.Sprintf("%s; %s mean %.4g ± %.3g; %s mean %.4g ± %.3g",
		thresholdLabel(s.Threshold),
		names[0], s.Groups[0].Stats.Mean, reduce.BandSigmas*s.Groups[0].Stats.StdDev,
		names[1], s.Groups[1].Stats.Mean, reduce.BandSigmas*s.Groups[1].Stats.StdDev)
	spans := groupSpans(points, len(s.Efficiencies))
	var bands [2][]charts.SeriesOpts
	for i, g := range s.Groups {
		bands[i] = bandMarkLines(g.Name, g.Band, spans[i][0], spans[i][1])
	}
	scatter := groupScatter(fmt.Sprintf("Efficiency detector %d - %s", det, runType), subtitle,
		"Efficiency (Counts / N protons)", len(s.Efficiencies), names, points, bands)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Efficiency distribution detector %d - %s", det, runType)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	var centres []string
	if n := len(s.Groups[0].Distribution); n > 0 {
		width := (s.DistributionMax - s.DistributionMin) / float64(n)
		centres = make([]string, n)
		for i := range centres {
			centres[i] = fmt.Sprintf("%.4e", s.DistributionMin+(float64(i)+0.5)*width)
		}
	}
	bar.SetXAxis(centres)
	for i, g := range s.Groups {
		data := make([]opts.BarData, len(g.Distribution))
		for j, c := range g.Distribution {
			data[j] = opts.BarData{Value: c}
		}
		bar.AddSeries(string(g.Name), data, charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(groupColors[i])}))
	}

	page := components.NewPage()
	page.AddCharts(scatter, bar)
	return page.Render(w)
}

func writeStabilityHTML(w io.Writer, det int, runType config.RunType, s *reduce.StabilitySeries) error {
	names := [2]catalog.SubGroup{s.Groups[0].Name, s.Groups[1].Name}
	points := [2][]reduce.Point{s.Groups[0].Points, s.Groups[1].Points}
	scatter := groupScatter(fmt.Sprintf("Position of maximum amplitude detector %d - %s", det, runType),
		fmt.Sprintf("quantization error ± %.2f channels", s.QuantizationError),
		"Amplitude (channels)", len(s.Positions), names, points, [2][]charts.SeriesOpts{})

	page := components.NewPage()
	page.AddCharts(scatter)
	return page.Render(w)
}

func writeSpectraHTML(w io.Writer, det int, runType config.RunType, runs []catalog.Run, first int, hists []*histogram.Amplitude) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Amplitudes", Width: "1200px", Height: "750px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Amplitudes detector %d - %s", det, runType)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Amplitude (channels)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Entries / N protons"}),
	)
	if len(hists) > 0 {
		centres := make([]float64, hists[0].NBins())
		for i := range centres {
			centres[i] = hists[0].BinCenter(i)
		}
		line.SetXAxis(centres)
	}
	colors := spectrumColors(len(hists))
	for i, h := range hists {
		data := make([]opts.LineData, h.NBins())
		for j := range data {
			data[j] = opts.LineData{Value: h.BinContent(j)}
		}
		line.AddSeries(SpectrumLabel(runs[i], first+i), data,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}))
	}

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}
