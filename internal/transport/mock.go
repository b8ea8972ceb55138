// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// rest is the logical reading of an unloaded sensor.
var rest = r3.Vector{X: 12, Y: -7, Z: 240}

// Phases of one synthetic press cycle.
const (
	mockSettle  = time.Second
	mockRise    = 400 * time.Millisecond
	mockHold    = 600 * time.Millisecond
	mockFall    = 400 * time.Millisecond
	mockIdle    = 800 * time.Millisecond
	mockCycle   = mockRise + mockHold + mockFall + mockIdle
	mockNoise   = 0.4
	mockPeakZ   = 0.45
	mockReachXY = 0.8
)

type MockSource struct {
	params fusion.Params
	period time.Duration
	clock  clock.Clock
	rng    *rand.Rand

	cycle  int
	target r2.Point
}

// NewMockSource creates a source that settles for a second, so a calibration
// can complete, then presses random spots of the pad in a loop.
func NewMockSource(params fusion.Params, rateHz float64, clk clock.Clock, rng *rand.Rand) *MockSource {
	return &MockSource{
		params: params,
		period: time.Duration(float64(time.Second) / rateHz),
		clock:  clk,
		rng:    rng,
		cycle:  -1,
	}
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) Run(ctx context.Context, h Handler) error {
	ticker := m.clock.Ticker(m.period)
	defer ticker.Stop()
	h.OnConnect()

	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			h.OnDisconnect(nil)
			return nil
		case <-ticker.C:
			h.OnFrame(m.FrameAt(elapsed))
			elapsed += m.period
		}
	}
}

// FrameAt returns the frame for the given time since start. Calls must not go
// back in time past a cycle boundary.
func (m *MockSource) FrameAt(elapsed time.Duration) frame.RawFrame {
	amp := 0.0
	if elapsed >= mockSettle {
		t := elapsed - mockSettle
		if c := int(t / mockCycle); c != m.cycle {
			m.cycle = c
			m.target = r2.Point{
				X: (m.rng.Float64()*2 - 1) * mockReachXY,
				Y: (m.rng.Float64()*2 - 1) * mockReachXY,
			}
		}
		amp = envelope(t % mockCycle)
	}
	return m.params.Transmit(m.press(m.target, amp))
}

// Target is the contact the current cycle is pressing, in fused coordinates.
func (m *MockSource) Target() r2.Point { return m.target }

// press spreads a load of amplitude amp over the sensors so that the fused
// centroid lands near target.
func (m *MockSource) press(target r2.Point, amp float64) [frame.Sensors]r3.Vector {
	if m.params.InvertX {
		target.X = -target.X
	}
	if m.params.InvertY {
		target.Y = -target.Y
	}
	var (
		weights [frame.Sensors]float64
		total   float64
	)
	for i, corner := range m.params.Layout {
		// bilinear weight of the corner, exact for a unit square layout
		w := (1 + target.X*corner.X) * (1 + target.Y*corner.Y) / 4
		weights[i] = math.Max(w, 0)
		total += weights[i]
	}
	load := amp * mockPeakZ * m.params.ADCFull * frame.Sensors

	var out [frame.Sensors]r3.Vector
	for i := range out {
		out[i] = rest.Add(r3.Vector{
			X: m.noise(),
			Y: m.noise(),
			Z: m.noise(),
		})
		if total > 0 {
			out[i].Z += load * weights[i] / total
		}
	}
	return out
}

func (m *MockSource) noise() float64 {
	return (m.rng.Float64()*2 - 1) * mockNoise
}

// envelope is the press amplitude in [0, 1] at t into a cycle.
func envelope(t time.Duration) float64 {
	switch {
	case t < mockRise:
		return float64(t) / float64(mockRise)
	case t < mockRise+mockHold:
		return 1
	case t < mockRise+mockHold+mockFall:
		return 1 - float64(t-mockRise-mockHold)/float64(mockFall)
	default:
		return 0
	}
}
