// Package chart renders replay records as charts: the replayed path against
// the recorded one, and the per-step deviation of each checked quantity.
package chart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/simreplay/internal/replay"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Size is the edge length of saved charts.
const Size = 8 * vg.Inch

// Series names used in legends.
const (
	SeriesReplayed = "replayed"
	SeriesExpert   = "expert"
)

// Path draws the observed position track and the expected one. The output
// format follows the file extension (png, svg, pdf).
func Path(records []replay.StepRecord, title, out string) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to plot")
	}

	actual := make(plotter.XYs, len(records))
	expected := make(plotter.XYs, len(records))
	for i, r := range records {
		actual[i] = plotter.XY{X: r.Position[0], Y: r.Position[1]}
		expected[i] = plotter.XY{X: r.ExpectedPosition[0], Y: r.ExpectedPosition[1]}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	for i, s := range []struct {
		name string
		xys  plotter.XYs
	}{{SeriesExpert, expected}, {SeriesReplayed, actual}} {
		line, err := plotter.NewLine(s.xys)
		if err != nil {
			return fmt.Errorf("building %s line: %w", s.name, err)
		}
		line.Color = plotutil.Color(i)
		if s.name == SeriesReplayed {
			line.Dashes = plotutil.Dashes(1)
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Add(plotter.NewGrid())

	return save(p, out)
}

// Deviations draws position, heading and speed error per step, with the
// tolerances as flat reference lines when tol is non-zero.
func Deviations(records []replay.StepRecord, tol replay.Tolerances, title, out string) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to plot")
	}

	series := []struct {
		name  string
		value func(replay.Deviation) float64
		limit float64
	}{
		{"position", func(d replay.Deviation) float64 { return max(d.Position[0], d.Position[1]) }, tol.Position},
		{"heading", func(d replay.Deviation) float64 { return d.Heading }, tol.Heading},
		{"speed", func(d replay.Deviation) float64 { return d.Speed }, tol.Speed},
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Absolute error"

	first := float64(records[0].Index)
	last := float64(records[len(records)-1].Index)
	for i, s := range series {
		points := make(plotter.XYs, len(records))
		for j, r := range records {
			points[j] = plotter.XY{X: float64(r.Index), Y: s.value(r.Deviation)}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return fmt.Errorf("building %s line: %w", s.name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.name, line)

		if s.limit > 0 {
			ref, err := plotter.NewLine(plotter.XYs{{X: first, Y: s.limit}, {X: last, Y: s.limit}})
			if err != nil {
				return fmt.Errorf("building %s tolerance: %w", s.name, err)
			}
			ref.Color = plotutil.Color(i)
			ref.Dashes = plotutil.Dashes(2)
			p.Add(ref)
		}
	}

	return save(p, out)
}

func save(p *plot.Plot, out string) error {
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("creating plot directory: %w", err)
		}
	}
	if err := p.Save(Size, Size, out); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
