// Package frame defines the raw 12-channel sensor frame and the text line
// formats it arrives in.
package frame

import (
	"github.com/golang/geo/r3"
)

const (
	// Sensors is the number of 3-axis sensors on the pad.
	Sensors = 4
	// Axes per sensor.
	Axes = 3
	// Channels is the number of values in one frame.
	Channels = Sensors * Axes
)

// RawFrame holds one reading of all sensors as transmitted, sensor-major:
// s0.x s0.y s0.z s1.x ... s3.z.
type RawFrame [Channels]float64

// Sensor returns the transmitted (x, y, z) triple of sensor slot i.
func (f *RawFrame) Sensor(i int) r3.Vector {
	base := i * Axes
	return r3.Vector{X: f[base], Y: f[base+1], Z: f[base+2]}
}

// FromVectors packs per-sensor vectors back into a frame.
func FromVectors(v [Sensors]r3.Vector) RawFrame {
	var f RawFrame
	for i, s := range v {
		base := i * Axes
		f[base], f[base+1], f[base+2] = s.X, s.Y, s.Z
	}
	return f
}
