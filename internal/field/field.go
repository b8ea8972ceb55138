// Package field keeps per-point press influence and color over a set of
// surface sample points.
package field

import (
	"math"
	"math/rand"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/relabs-tech/tactile_viewer/internal/surface"
)

// Params configures a Field.
type Params struct {
	// RadiusFactor times the lattice spacing is the falloff radius.
	RadiusFactor float64
	// GainX and GainY stretch contact coordinates before the (u, v) lookup.
	GainX float64
	GainY float64

	BaseColor string
	MidColor  string
	PeakColor string

	// MaxPoints sizes the preallocated buffers.
	MaxPoints int

	Press       time.Duration
	Hold        time.Duration
	Release     time.Duration
	InitialIdle time.Duration
	DwellMin    time.Duration
	DwellMax    time.Duration
}

func DefaultParams() Params {
	return Params{
		RadiusFactor: 15,
		GainX:        1.2,
		GainY:        1.2,
		BaseColor:    "#1affc2",
		MidColor:     "#ffa500",
		PeakColor:    "#ff1111",
		MaxPoints:    8000,
		Press:        500 * time.Millisecond,
		Hold:         time.Second,
		Release:      time.Second,
		InitialIdle:  2 * time.Second,
		DwellMin:     time.Second,
		DwellMax:     3 * time.Second,
	}
}

// Mode selects who owns the press center.
type Mode int

const (
	// ModeDemo lets the built-in animator drive presses.
	ModeDemo Mode = iota
	// ModeLive takes presses from UpdateContact only.
	ModeLive
)

func (m Mode) String() string {
	if m == ModeLive {
		return "live"
	}
	return "demo"
}

// Field is the pressure visualization state. It is owned by one goroutine.
type Field struct {
	params Params
	stops  [3]linearRGB

	points    []surface.SamplePoint
	spacing   float64
	influence []float32
	colors    []float32

	center    int
	intensity float64

	mode  Mode
	anim  AnimationState
	timer float64
	rng   *rand.Rand
}

// New returns an empty field in demo mode. rng drives the demo animator;
// nil seeds one from the clock.
func New(params Params, rng *rand.Rand) (*Field, error) {
	var stops [3]linearRGB
	for i, hex := range []string{params.BaseColor, params.MidColor, params.PeakColor} {
		c, err := colorful.Hex(hex)
		if err != nil {
			return nil, errors.Wrapf(err, "color stop %d", i)
		}
		stops[i] = toLinear(c)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	n := max(params.MaxPoints, 0)
	return &Field{
		params:    params,
		stops:     stops,
		influence: make([]float32, 0, n),
		colors:    make([]float32, 0, 3*n),
		center:    -1,
		timer:     params.InitialIdle.Seconds(),
		rng:       rng,
	}, nil
}

// SetPoints replaces the point set wholesale and clears any press.
func (f *Field) SetPoints(points []surface.SamplePoint, spacing float64) {
	f.points = points
	f.spacing = spacing
	f.clearPress()
	if f.anim != AnimIdle {
		f.anim = AnimIdle
		f.timer = f.dwell()
	}
	f.influence = resize(f.influence, len(points))
	f.colors = resize(f.colors, 3*len(points))
	f.reset()
}

// SetMode switches between demo animation and live contact. Switching
// clears the press center.
func (f *Field) SetMode(m Mode) {
	if m == f.mode {
		return
	}
	f.mode = m
	f.clearPress()
	f.anim = AnimIdle
	f.timer = f.dwell()
}

func (f *Field) Mode() Mode { return f.mode }

// UpdateContact moves the press center to the point nearest the contact in
// (u, v). Intensity <= 0 clears it and values above 1 are capped. Ignored
// outside live mode.
func (f *Field) UpdateContact(x, y, intensity float64) {
	if f.mode != ModeLive {
		return
	}
	if intensity <= 0 || len(f.points) == 0 {
		f.clearPress()
		return
	}
	f.center = f.Nearest(x, y)
	f.intensity = clamp01(intensity)
}

// Nearest returns the index of the point closest to contact (x, y) after
// the gain mapping, or -1 without points.
func (f *Field) Nearest(x, y float64) int {
	u := (x*f.params.GainX + 1) / 2
	v := (y*f.params.GainY + 1) / 2
	best, bestD := -1, math.Inf(1)
	for i := range f.points {
		du := f.points[i].U - u
		dv := f.points[i].V - v
		if d := du*du + dv*dv; d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// Tick advances the demo animator (in demo mode) and recomputes every
// point's influence and color.
func (f *Field) Tick(dt time.Duration) {
	if f.mode == ModeDemo {
		f.animate(dt.Seconds())
	}
	if len(f.points) == 0 {
		return
	}
	if f.center < 0 || f.intensity <= 0 {
		f.reset()
		return
	}

	r := f.params.RadiusFactor * f.spacing
	rSq := r * r
	c := f.points[f.center].Position
	for i := range f.points {
		dSq := f.points[i].Position.Sub(c).Norm2()
		falloff := 1.0
		if rSq > 0 {
			falloff = math.Exp(-4 * dSq / rSq)
		} else if dSq > 0 {
			falloff = 0
		}
		inf := falloff * f.intensity
		f.influence[i] = float32(inf)
		f.color(i, inf)
	}
}

// Influence returns the per-point influence buffer. It is reused by the
// next Tick; copy it to keep it.
func (f *Field) Influence() []float32 { return f.influence }

// Colors returns the per-point linear RGB buffer, three floats per point.
func (f *Field) Colors() []float32 { return f.colors }

// Points returns the current point set.
func (f *Field) Points() []surface.SamplePoint { return f.points }

func (f *Field) Spacing() float64 { return f.spacing }

// Press returns the press center index and intensity, or false without one.
func (f *Field) Press() (int, float64, bool) {
	if f.center < 0 || f.intensity <= 0 {
		return -1, 0, false
	}
	return f.center, f.intensity, true
}

func (f *Field) clearPress() {
	f.center = -1
	f.intensity = 0
}

func (f *Field) reset() {
	for i := range f.influence {
		f.influence[i] = 0
		f.stops[0].put(f.colors, i)
	}
}

func (f *Field) color(i int, inf float64) {
	if inf < 0.5 {
		f.stops[0].lerp(f.stops[1], inf*2).put(f.colors, i)
		return
	}
	f.stops[1].lerp(f.stops[2], (inf-0.5)*2).put(f.colors, i)
}

func resize(buf []float32, n int) []float32 {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]float32, n)
}
