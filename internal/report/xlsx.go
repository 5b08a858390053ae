package report

import (
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/calibration.report/internal/catalog"
	"github.com/banshee-data/calibration.report/internal/histogram"
	"github.com/banshee-data/calibration.report/internal/reduce"
	"github.com/xuri/excelize/v2"
)

// cell returns v, or an empty cell for NaN and ±Inf which have no XLSX
// numeric representation.
func cell(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return v
}

// sheetWriter appends rows to named sheets of a new workbook.
type sheetWriter struct {
	f    *excelize.File
	rows map[string]int
	err  error
}

func newSheetWriter(first string) *sheetWriter {
	sw := &sheetWriter{f: excelize.NewFile(), rows: make(map[string]int)}
	sw.err = sw.f.SetSheetName("Sheet1", first)
	return sw
}

func (sw *sheetWriter) row(sheet string, values ...interface{}) {
	if sw.err != nil {
		return
	}
	if _, ok := sw.rows[sheet]; !ok {
		if idx, _ := sw.f.GetSheetIndex(sheet); idx < 0 {
			if _, err := sw.f.NewSheet(sheet); err != nil {
				sw.err = fmt.Errorf("sheet %s: %w", sheet, err)
				return
			}
		}
	}
	sw.rows[sheet]++
	ref, err := excelize.CoordinatesToCellName(1, sw.rows[sheet])
	if err != nil {
		sw.err = err
		return
	}
	if err := sw.f.SetSheetRow(sheet, ref, &values); err != nil {
		sw.err = fmt.Errorf("sheet %s row %d: %w", sheet, sw.rows[sheet], err)
	}
}

func (sw *sheetWriter) writeTo(w io.Writer) error {
	defer sw.f.Close()
	if sw.err != nil {
		return sw.err
	}
	return sw.f.Write(w)
}

// membership maps catalog index to sub-group name.
func membership(names [2]catalog.SubGroup, groups [2][]reduce.Point) map[int]catalog.SubGroup {
	out := make(map[int]catalog.SubGroup)
	for i, pts := range groups {
		for _, p := range pts {
			out[p.Index] = names[i]
		}
	}
	return out
}

func writeEfficiencyXLSX(w io.Writer, s *reduce.EfficiencySeries, rows []reduce.RunMetrics) error {
	groups := membership([2]catalog.SubGroup{s.Groups[0].Name, s.Groups[1].Name},
		[2][]reduce.Point{s.Groups[0].Points, s.Groups[1].Points})

	sw := newSheetWriter("Runs")
	sw.row("Runs", "Index", "Run", "Group", "Entries", "Total intensity", "Efficiency", "Error", "Peak position")
	for _, m := range rows {
		group, ok := groups[m.Index]
		label := string(group)
		if !ok {
			label = "dropped"
		}
		sw.row("Runs", m.Index, m.RunID, label, m.EntryCount, cell(m.TotalIntensity),
			cell(m.Efficiency), cell(m.Error), cell(m.PeakPosition))
	}

	sw.row("Groups", "Group", "N", "Mean", "Std dev", "Lower", "Upper", "Threshold")
	for _, g := range s.Groups {
		sw.row("Groups", string(g.Name), g.Stats.N, cell(g.Stats.Mean), cell(g.Stats.StdDev),
			cell(g.Band.Lower), cell(g.Band.Upper), s.Threshold)
	}

	n := len(s.Groups[0].Distribution)
	sw.row("Distribution", "Low", "High", string(s.Groups[0].Name), string(s.Groups[1].Name))
	if n > 0 {
		width := (s.DistributionMax - s.DistributionMin) / float64(n)
		for i := 0; i < n; i++ {
			lo := s.DistributionMin + float64(i)*width
			sw.row("Distribution", lo, lo+width, s.Groups[0].Distribution[i], s.Groups[1].Distribution[i])
		}
	}
	return sw.writeTo(w)
}

func writeStabilityXLSX(w io.Writer, s *reduce.StabilitySeries, rows []reduce.RunMetrics) error {
	groups := membership([2]catalog.SubGroup{s.Groups[0].Name, s.Groups[1].Name},
		[2][]reduce.Point{s.Groups[0].Points, s.Groups[1].Points})

	sw := newSheetWriter("Runs")
	sw.row("Runs", "Index", "Run", "Group", "Entries", "Total intensity", "Peak position", "Error")
	for _, m := range rows {
		sw.row("Runs", m.Index, m.RunID, string(groups[m.Index]), m.EntryCount,
			cell(m.TotalIntensity), cell(m.PeakPosition), s.QuantizationError)
	}
	return sw.writeTo(w)
}

func writeSpectraXLSX(w io.Writer, runs []catalog.Run, first int, hists []*histogram.Amplitude) error {
	sw := newSheetWriter("Spectra")
	header := []interface{}{"Bin centre"}
	for i := range hists {
		header = append(header, SpectrumLabel(runs[i], first+i))
	}
	sw.row("Spectra", header...)
	if len(hists) > 0 {
		for b := 0; b < hists[0].NBins(); b++ {
			values := []interface{}{hists[0].BinCenter(b)}
			for _, h := range hists {
				values = append(values, cell(h.BinContent(b)))
			}
			sw.row("Spectra", values...)
		}
	}
	return sw.writeTo(w)
}
