package metrics

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SavePlot renders per-class precision, recall and F1 as a grouped bar
// chart. The image format follows the extension of path (.png, .svg,
// .pdf, ...).
func (r *Report) SavePlot(path string) error {
	if len(r.Classes) == 0 {
		return errors.New("metrics: report has no classes to plot")
	}

	p := plot.New()
	p.Title.Text = "Per-class scores"
	p.Y.Label.Text = "Score"
	p.Y.Min, p.Y.Max = 0, 1

	series := []struct {
		name  string
		value func(ClassScore) float64
	}{
		{"precision", func(c ClassScore) float64 { return c.Precision }},
		{"recall", func(c ClassScore) float64 { return c.Recall }},
		{"f1", func(c ClassScore) float64 { return c.F1 }},
	}

	w := vg.Points(10)
	names := make([]string, len(r.Classes))
	for i, c := range r.Classes {
		names[i] = c.Name
	}

	for s, ser := range series {
		values := make(plotter.Values, len(r.Classes))
		for i, c := range r.Classes {
			values[i] = ser.value(c)
		}
		bars, err := plotter.NewBarChart(values, w)
		if err != nil {
			return errors.Wrapf(err, "metrics: %s bars", ser.name)
		}
		bars.Color = plotutil.Color(s)
		bars.LineStyle.Width = 0
		bars.Offset = vg.Length(s-1) * w
		p.Add(bars)
		p.Legend.Add(ser.name, bars)
	}
	p.Legend.Top = true
	p.NominalX(names...)

	width := vg.Length(max(4, len(names))) * vg.Inch
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "metrics: save plot %s", path)
	}
	return nil
}
