package chart

import (
	"io"

	"github.com/pkg/errors"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// Options sizes the charts and fixes their Y ranges.
type Options struct {
	Width    int
	Height   int
	RawMax   float64
	ForceMax float64
}

func DefaultOptions() Options {
	return Options{Width: 640, Height: 200, RawMax: 0.6, ForceMax: 12}
}

var (
	rawColor   = drawing.ColorFromHex("4ade80")
	forceColor = drawing.ColorFromHex("f59e0b")
	xColor     = drawing.ColorFromHex("60a5fa")
	yColor     = drawing.ColorFromHex("f472b6")
)

type line struct {
	name  string
	color drawing.Color
	fill  bool
	value func(fusion.Sample) float64
}

// RenderRaw draws the normalized press amplitude as PNG.
func RenderRaw(w io.Writer, samples []fusion.Sample, opts Options) error {
	return render(w, samples, opts, "raw", 0, opts.RawMax,
		line{name: "z", color: rawColor, fill: true, value: func(s fusion.Sample) float64 { return s.Z }})
}

// RenderForce draws the force estimate in newtons as PNG.
func RenderForce(w io.Writer, samples []fusion.Sample, opts Options) error {
	return render(w, samples, opts, "force (N)", 0, opts.ForceMax,
		line{name: "force", color: forceColor, fill: true, value: func(s fusion.Sample) float64 { return s.Force }})
}

// RenderPosition draws the contact x and y as PNG.
func RenderPosition(w io.Writer, samples []fusion.Sample, opts Options) error {
	return render(w, samples, opts, "position", -1, 1,
		line{name: "x", color: xColor, value: func(s fusion.Sample) float64 { return s.X }},
		line{name: "y", color: yColor, value: func(s fusion.Sample) float64 { return s.Y }})
}

func render(w io.Writer, samples []fusion.Sample, opts Options, title string, yMin, yMax float64, lines ...line) error {
	if len(samples) < 2 {
		return errors.Errorf("need at least 2 samples to chart, got %d", len(samples))
	}
	xs := make([]float64, len(samples))
	for i := range xs {
		xs[i] = float64(i)
	}
	series := make([]gochart.Series, 0, len(lines))
	for _, l := range lines {
		ys := make([]float64, len(samples))
		for i, s := range samples {
			ys[i] = min(max(l.value(s), yMin), yMax)
		}
		style := gochart.Style{StrokeColor: l.color, StrokeWidth: 2}
		if l.fill {
			style.FillColor = l.color.WithAlpha(51)
		}
		series = append(series, gochart.ContinuousSeries{Name: l.name, XValues: xs, YValues: ys, Style: style})
	}

	ch := gochart.Chart{
		Title:  title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 24, Left: 16, Right: 12, Bottom: 8},
		},
		XAxis:  gochart.XAxis{Style: gochart.Hidden()},
		YAxis:  gochart.YAxis{Range: &gochart.ContinuousRange{Min: yMin, Max: yMax}},
		Series: series,
	}
	if len(lines) > 1 {
		ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}
	}
	return errors.Wrap(ch.Render(gochart.PNG, w), "render chart")
}
