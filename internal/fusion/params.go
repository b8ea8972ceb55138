// Package fusion turns raw four-sensor frames into a single contact estimate.
package fusion

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
)

// Params is the immutable fusion configuration.
type Params struct {
	// ChipMap[i] is the transmitted slot read as logical sensor i.
	ChipMap [frame.Sensors]int
	// AxisOrder[k] is the transmitted axis used as component k.
	AxisOrder [frame.Axes]int
	// Sign is multiplied component-wise after the axis permutation.
	Sign r3.Vector

	// Layout is the normalized pad position of each logical sensor.
	Layout  [frame.Sensors]r2.Point
	InvertX bool
	InvertY bool

	ADCFull        float64
	PressThreshold float64
	NoiseGate      float64
	IntensityGain  float64
	ForceFactor    float64
	ZeroFrames     int
}

// DefaultParams returns the values the pad firmware is shipped with.
func DefaultParams() Params {
	return Params{
		ChipMap:   [frame.Sensors]int{0, 1, 2, 3},
		AxisOrder: [frame.Axes]int{0, 1, 2},
		Sign:      r3.Vector{X: -1, Y: -1, Z: -1},
		Layout: [frame.Sensors]r2.Point{
			{X: 1, Y: 1},
			{X: -1, Y: 1},
			{X: 1, Y: -1},
			{X: -1, Y: -1},
		},
		InvertX:        true,
		InvertY:        false,
		ADCFull:        80,
		PressThreshold: 0.01,
		NoiseGate:      2.0,
		IntensityGain:  2.5,
		ForceFactor:    0.263,
		ZeroFrames:     10,
	}
}

// Validate checks that the remap tables are permutations and the scalars are usable.
func (p Params) Validate() error {
	var seenChip [frame.Sensors]bool
	for i, c := range p.ChipMap {
		if c < 0 || c >= frame.Sensors || seenChip[c] {
			return errors.Errorf("chip map entry %d (%d) is not a permutation of 0-%d", i, c, frame.Sensors-1)
		}
		seenChip[c] = true
	}
	var seenAxis [frame.Axes]bool
	for i, a := range p.AxisOrder {
		if a < 0 || a >= frame.Axes || seenAxis[a] {
			return errors.Errorf("axis order entry %d (%d) is not a permutation of 0-%d", i, a, frame.Axes-1)
		}
		seenAxis[a] = true
	}
	if p.ADCFull <= 0 {
		return errors.Errorf("ADC full scale must be positive, got %v", p.ADCFull)
	}
	if p.PressThreshold < 0 || p.PressThreshold >= 1 {
		return errors.Errorf("press threshold must be in [0,1), got %v", p.PressThreshold)
	}
	if p.NoiseGate < 0 {
		return errors.Errorf("noise gate must not be negative, got %v", p.NoiseGate)
	}
	if p.IntensityGain <= 0 {
		return errors.Errorf("intensity gain must be positive, got %v", p.IntensityGain)
	}
	if p.ZeroFrames < 1 {
		return errors.Errorf("zero frames must be at least 1, got %d", p.ZeroFrames)
	}
	return nil
}

// remap converts a transmitted frame into logical sensor vectors.
func (p *Params) remap(f *frame.RawFrame, dst *[frame.Sensors]r3.Vector) {
	for i := range dst {
		raw := f.Sensor(p.ChipMap[i])
		dst[i] = r3.Vector{
			X: component(raw, p.AxisOrder[0]) * p.Sign.X,
			Y: component(raw, p.AxisOrder[1]) * p.Sign.Y,
			Z: component(raw, p.AxisOrder[2]) * p.Sign.Z,
		}
	}
}

func component(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Transmit is the inverse of the remap: it returns the frame a pad would
// send for the given logical sensor vectors. Zero sign components transmit 0.
func (p Params) Transmit(logical [frame.Sensors]r3.Vector) frame.RawFrame {
	var f frame.RawFrame
	for i, v := range logical {
		base := p.ChipMap[i] * frame.Axes
		f[base+p.AxisOrder[0]] = unsign(v.X, p.Sign.X)
		f[base+p.AxisOrder[1]] = unsign(v.Y, p.Sign.Y)
		f[base+p.AxisOrder[2]] = unsign(v.Z, p.Sign.Z)
	}
	return f
}

func unsign(v, sign float64) float64 {
	if sign == 0 {
		return 0
	}
	return v / sign
}
