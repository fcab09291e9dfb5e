// Copyright ©2022 Evolution. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Plot generation related functionality.

package analysis

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/evolution-gaming/vmafscore/internal/vmaflog"
)

var (
	defaultPlotWidth  = vg.Centimeter * 24
	defaultPlotHeight = vg.Centimeter * 7
)

var (
	ErrNoValues      = errors.New("no values to plot")
	ErrMetricMissing = errors.New("metric not present in log")
)

// A custom color palette: color1 as base color and color2 as a darker variant.
var ColorPalette = []color.RGBA{
	// red1
	{R: 230, G: 57, B: 70, A: 255},
	// red2
	{R: 143, G: 35, B: 43, A: 255},
	// green1
	{R: 84, G: 184, B: 50, A: 255},
	// green2
	{R: 50, G: 110, B: 30, A: 255},
	// blue1
	{R: 63, G: 55, B: 201, A: 255},
	// blue2
	{R: 51, G: 45, B: 163, A: 255},
	// purple1
	{R: 86, G: 11, B: 173, A: 255},
	// purple2
	{R: 62, G: 8, B: 125, A: 255},
	// cyan1
	{R: 31, G: 180, B: 206, A: 255},
	// cyan2
	{R: 11, G: 123, B: 143, A: 255},
	// orange1
	{R: 255, G: 174, B: 0, A: 255},
	// orange2
	{R: 173, G: 118, B: 0, A: 255},
}

// CreateCDFPlot creates Cumulative Distribution Function plot for given VQM values.
func CreateCDFPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "Probability"
	p.Y.Min = 0

	if len(values) == 0 {
		return p, fmt.Errorf("CreateCDFPlot(): %w", ErrNoValues)
	}
	// Sorting must not leak into caller's slice.
	lValues := make([]float64, len(values))
	copy(lValues, values)
	sort.Float64s(lValues)

	cdfValues := make(plotter.XYs, len(lValues))
	for i, v := range lValues {
		cdfValues[i].X = v
		cdfValues[i].Y = stat.CDF(v, stat.Empirical, lValues, nil)
	}

	cdfLine, err := plotter.NewLine(cdfValues)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() creating new Line: %w", err)
	}
	cdfLine.Color = ColorPalette[2]

	p.Add(cdfLine, plotter.NewGrid())
	quantiles, err := createQuantileLines(p, lValues, 0.01, 0.05, 0.5, 0.95)
	if err != nil {
		return p, fmt.Errorf("CreateCDFPlot() %w", err)
	}
	p.Add(quantiles...)

	return p, nil
}

// CreateHistogramPlot creates histogram plot for given VQM values.
func CreateHistogramPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = name
	p.Y.Label.Text = "N"

	if len(values) == 0 {
		return p, fmt.Errorf("CreateHistogramPlot(): %w", ErrNoValues)
	}

	// A number of bins to use for histogram, short clips get fewer.
	bins := 100
	if len(values) < bins {
		bins = len(values)
	}

	pHist, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return p, fmt.Errorf("CreateHistogramPlot() creating new histogram: %w", err)
	}
	pHist.Color = color.Transparent
	pHist.FillColor = ColorPalette[7]

	p.Add(pHist)
	p.Add(plotter.NewGrid())

	return p, nil
}

// CreateVqmPlot creates a plot for given VQM values with a mean line.
//
// Since values are specified as a 1D slice - it is assumed that index into
// slice is a frame number.
func CreateVqmPlot(values []float64, name string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Frame #"
	p.Y.Label.Text = name

	if len(values) == 0 {
		return p, fmt.Errorf("CreateVqmPlot(): %w", ErrNoValues)
	}

	vqmXY := make(plotter.XYs, len(values))
	for i, v := range values {
		vqmXY[i].X = float64(i)
		vqmXY[i].Y = v
	}
	vqmLine, err := plotter.NewLine(vqmXY)
	if err != nil {
		return p, fmt.Errorf("CreateVqmPlot() creating new Line: %w", err)
	}
	vqmLine.Color = ColorPalette[0]

	mean := stat.Mean(values, nil)
	meanLine, meanLabel, err := horizontalLineWithLabel(mean, 0, float64(len(values)-1), fmt.Sprintf("mean=%.2f", mean))
	if err != nil {
		return p, fmt.Errorf("CreateVqmPlot() %w", err)
	}

	p.Add(vqmLine, meanLine, meanLabel, plotter.NewGrid())

	return p, nil
}

// CreateComparePlot overlays per-frame values of several metrics, e.g. all
// models scored in one run.
func CreateComparePlot(l *vmaflog.Log, names ...string) (*plot.Plot, error) {
	p := plot.New()
	p.X.Label.Text = "Frame #"
	p.Y.Label.Text = "Score"

	if len(names) == 0 {
		return p, fmt.Errorf("CreateComparePlot(): %w", ErrNoValues)
	}
	var yMax float64
	for i, name := range names {
		values, err := series(l, name)
		if err != nil {
			return p, fmt.Errorf("CreateComparePlot() %w", err)
		}
		xys := make(plotter.XYs, len(values))
		for j, v := range values {
			xys[j].X = float64(l.Frames[j].Num)
			xys[j].Y = v
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return p, fmt.Errorf("CreateComparePlot() creating new Line: %w", err)
		}
		// Base colors only.
		line.Color = ColorPalette[i*2%len(ColorPalette)]
		p.Add(line)
		p.Legend.Add(name, line)
		yMax = max(yMax, floats.Max(values))
	}
	p.Y.Min = 0
	p.Y.Max = yMax * 1.1
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())

	return p, nil
}

// series returns per-frame values of name, every frame must carry it.
func series(l *vmaflog.Log, name string) ([]float64, error) {
	values := make([]float64, len(l.Frames))
	for i, f := range l.Frames {
		v, ok := f.Metrics[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s in frame %d", ErrMetricMissing, name, f.Num)
		}
		values[i] = v
	}
	if len(values) == 0 {
		return nil, ErrNoValues
	}
	return values, nil
}

// MultiPlotVqm will create VQM metric multi plot and save it to a file.
//
// Resulting plot will include the provided VQM metric plot, it's histogram plot
// and CDF plot all in one canvas.
func MultiPlotVqm(values []float64, metric, title, outFile string) (err error) {
	// Create a 2D slice to hold subplots. This is the sad state of gonum's API
	// at this point unfortunately.
	const rows, cols = 3, 1
	plots := make([][]*plot.Plot, rows)
	for i := range plots {
		plots[i] = make([]*plot.Plot, cols)
	}

	plots[0][0], err = CreateVqmPlot(values, metric)
	if err != nil {
		return err
	}

	plots[1][0], err = CreateHistogramPlot(values, metric)
	if err != nil {
		return err
	}

	plots[2][0], err = CreateCDFPlot(values, metric)
	if err != nil {
		return err
	}

	// Tweak titles and labels to have better layout and make plots less busy.
	plots[0][0].Title.Text = title + "\n\nPer frame " + metric
	plots[1][0].Title.Text = metric + " Histogram"
	plots[1][0].X.Label.Text = ""
	plots[2][0].Title.Text = "Cumulative Distribution Function (CDF)"

	return savePNG(plots, outFile)
}

// MultiPlotLog plots metric out of a result log, see MultiPlotVqm.
func MultiPlotLog(l *vmaflog.Log, metric, title, outFile string) error {
	values, err := series(l, metric)
	if err != nil {
		return fmt.Errorf("MultiPlotLog() %w", err)
	}
	return MultiPlotVqm(values, metric, title, outFile)
}

// ComparePlotLog saves a CreateComparePlot of names to outFile.
func ComparePlotLog(l *vmaflog.Log, title, outFile string, names ...string) error {
	p, err := CreateComparePlot(l, names...)
	if err != nil {
		return err
	}
	p.Title.Text = title
	return savePNG([][]*plot.Plot{{p}}, outFile)
}

// savePNG draws plots as tiles of a single PNG image.
func savePNG(plots [][]*plot.Plot, outFile string) error {
	rows, cols := len(plots), len(plots[0])
	img := vgimg.New(defaultPlotWidth*vg.Length(cols), defaultPlotHeight*vg.Length(rows))
	dc := draw.New(img)

	t := draw.Tiles{
		Rows: rows,
		Cols: cols,
		PadY: vg.Points(10),
	}

	canvases := plot.Align(plots, t, dc)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			if plots[j][i] != nil {
				plots[j][i].Draw(canvases[j][i])
			}
		}
	}

	w, err := os.Create(outFile)
	if err != nil {
		return fmt.Errorf("savePNG() error from os.Create(): %w", err)
	}
	defer w.Close()

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("savePNG() failed writing png file: %w", err)
	}

	return nil
}

// verticalLine is helper to create a vertical line.
func verticalLine(x, ymin, ymax float64) (*plotter.Line, error) {
	return plotter.NewLine(plotter.XYs{
		{X: x, Y: ymin},
		{X: x, Y: ymax},
	})
}

// horizontalLineWithLabel creates a horizontal line labeled at its start.
func horizontalLineWithLabel(y, xMin, xMax float64, label string) (*plotter.Line, *plotter.Labels, error) {
	hLine, err := plotter.NewLine(plotter.XYs{
		{X: xMin, Y: y},
		{X: xMax, Y: y},
	})
	if err != nil {
		return nil, nil, err
	}
	hLine.Color = color.RGBA{156, 67, 162, 255}
	hLabel, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    plotter.XYs{{X: xMin, Y: y}},
		Labels: []string{label},
	})
	if err != nil {
		return nil, nil, err
	}
	hLabel.Offset.X = 5
	hLabel.Offset.Y = 5

	return hLine, hLabel, nil
}

// createQuantileLines is helper to create vertical Quantile lines. values
// must be sorted.
func createQuantileLines(p *plot.Plot, values []float64, quantiles ...float64) ([]plot.Plotter, error) {
	var plotters []plot.Plotter
	colorCount := len(ColorPalette)
	for i, q := range quantiles {
		qVal := stat.Quantile(q, stat.Empirical, values, nil)
		qLine, err := verticalLine(qVal, p.Y.Min, p.Y.Max)
		if err != nil {
			return nil, err
		}
		qLine.LineStyle.Width = vg.Points(1)
		qLine.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
		// Wrap around the palette.
		qLine.Color = ColorPalette[i*5%colorCount]

		labels, err := plotter.NewLabels(plotter.XYLabels{
			XYs:    plotter.XYs{{X: qVal, Y: q}},
			Labels: []string{fmt.Sprintf("q(%.2f)=%.3f", q, qVal)},
		})
		if err != nil {
			return nil, err
		}
		labels.Offset.X = 5
		labels.Offset.Y = -5

		plotters = append(plotters, qLine, labels)
	}
	// Also add mean/average line.
	meanVal := stat.Mean(values, nil)
	meanLine, err := verticalLine(meanVal, p.Y.Min, p.Y.Max)
	if err != nil {
		return nil, err
	}
	meanLine.Color = ColorPalette[len(ColorPalette)-1]
	qValMean := stat.CDF(meanVal, stat.Empirical, values, nil)
	meanLabel, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    plotter.XYs{{X: meanVal, Y: qValMean}},
		Labels: []string{fmt.Sprintf("mean=%.3f", meanVal)},
	})
	if err != nil {
		return nil, err
	}
	meanLabel.Offset.X = 5
	meanLabel.Offset.Y = -5
	plotters = append(plotters, meanLine, meanLabel)

	return plotters, nil
}
