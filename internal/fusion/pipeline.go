package fusion

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
)

// ErrNotCalibrated is returned by Process while no baseline exists.
var ErrNotCalibrated = errors.New("fusion: no baseline, calibrate first")

// Contact is the fused press: x and y in [-1, 1], intensity in [0, 1].
type Contact struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Intensity float64 `json:"intensity"`
}

// Reading is a Contact plus the telemetry derived alongside it.
type Reading struct {
	Contact
	// Z is the normalized vertical amplitude before thresholding.
	Z float64 `json:"z"`
	// Force is the estimated load in newtons.
	Force float64 `json:"force_n"`
}

// ForceValue returns Force as a periph physical quantity.
func (r Reading) ForceValue() physic.Force {
	return physic.Force(r.Force * float64(physic.Newton))
}

// Pipeline fuses frames against the calibrator's baseline.
// Like Calibrator it belongs to a single goroutine.
type Pipeline struct {
	params Params
	calib  *Calibrator
	sink   ChartSink

	current [frame.Sensors]r3.Vector
}

// NewPipeline returns a pipeline reading its baseline from calib. sink may be nil.
func NewPipeline(p Params, calib *Calibrator, sink ChartSink) *Pipeline {
	return &Pipeline{params: p, calib: calib, sink: sink}
}

// Process converts one frame into a reading. It fails fast with
// ErrNotCalibrated when the calibrator has no baseline.
func (p *Pipeline) Process(f frame.RawFrame) (Reading, error) {
	baseline, ok := p.calib.Baseline()
	if !ok {
		return Reading{}, ErrNotCalibrated
	}
	p.params.remap(&f, &p.current)

	var (
		weights     [frame.Sensors]float64
		totalWeight float64
	)
	for i, v := range p.current {
		w := math.Abs(v.Z - baseline[i].Z)
		if w < p.params.NoiseGate {
			w = 0
		}
		weights[i] = w
		totalWeight += w
	}
	rawZTotal := totalWeight / frame.Sensors
	zVisual := clamp(rawZTotal/p.params.ADCFull, 0, 1)

	if zVisual < p.params.PressThreshold {
		p.record(Sample{})
		return Reading{}, nil
	}

	var x, y float64
	if totalWeight > 0 {
		for i, w := range weights {
			x += p.params.Layout[i].X * w
			y += p.params.Layout[i].Y * w
		}
		x /= totalWeight
		y /= totalWeight
	}
	x = clamp(x, -1, 1)
	y = clamp(y, -1, 1)
	if p.params.InvertX {
		x = -x
	}
	if p.params.InvertY {
		y = -y
	}

	norm := (zVisual - p.params.PressThreshold) / (1 - p.params.PressThreshold)
	r := Reading{
		Contact: Contact{
			X:         x,
			Y:         y,
			Intensity: math.Min(norm*p.params.IntensityGain, 1),
		},
		Z:     zVisual,
		Force: rawZTotal * p.params.ForceFactor,
	}
	p.record(Sample{X: x, Y: y, Z: zVisual, Force: r.Force})
	return r, nil
}

func (p *Pipeline) record(s Sample) {
	if p.sink != nil {
		p.sink.Record(s)
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
