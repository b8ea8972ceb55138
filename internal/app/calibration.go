// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

const (
	// A corner press is captured from this many frames at or above pressIntensity.
	pressFrames    = 20
	pressIntensity = 0.2

	confFloor = 0.05
)

// CornerPress is the fused position measured while pressing near one sensor.
type CornerPress struct {
	Sensor     int      `json:"sensor"`
	Corner     r2.Point `json:"corner"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	StdDevX    float64  `json:"stddev_x"`
	StdDevY    float64  `json:"stddev_y"`
	Intensity  float64  `json:"intensity"`
	Force      float64  `json:"force_n"`
	Samples    int      `json:"samples"`
	Confidence float64  `json:"confidence"`
}

// CalibrationResult is what the guided calibration writes to disk.
type CalibrationResult struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	Source        string `json:"source"`

	Noise           fusion.NoiseReport `json:"noise"`
	NoiseConfidence float64            `json:"noise_confidence"`

	Presses []CornerPress `json:"presses"`

	// Suggested config values; each press should read toward its corner.
	InvertX bool `json:"invert_x"`
	InvertY bool `json:"invert_y"`

	Confidence float64  `json:"confidence"`
	Notes      []string `json:"notes,omitempty"`
}

// Calibration walks a user through capturing a baseline and pressing near
// every sensor, and suggests INVERT_X and INVERT_Y.
type Calibration struct {
	Params       fusion.Params
	Source       transport.Source
	In           io.Reader
	Out          io.Writer
	PressTimeout time.Duration
}

type calibrationFeed struct {
	connected chan struct{}
	frames    chan frame.RawFrame
	stopped   chan struct{}
	err       error
}

func (f *calibrationFeed) OnConnect() { close(f.connected) }

func (f *calibrationFeed) OnFrame(fr frame.RawFrame) {
	select {
	case f.frames <- fr:
	default:
	}
}

func (f *calibrationFeed) OnDisconnect(err error) {
	f.err = err
	close(f.stopped)
}

// stopErr is valid once stopped is closed.
func (f *calibrationFeed) stopErr() error {
	if f.err == nil {
		return errors.New("frame source stopped")
	}
	return f.err
}

// Run performs the guided calibration.
func (c *Calibration) Run(ctx context.Context) (CalibrationResult, error) {
	res := CalibrationResult{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Source:        c.Source.Name(),
	}
	if c.PressTimeout <= 0 {
		c.PressTimeout = 10 * time.Second
	}
	in := bufio.NewReader(c.In)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	feed := &calibrationFeed{
		connected: make(chan struct{}),
		frames:    make(chan frame.RawFrame, 64),
		stopped:   make(chan struct{}),
	}
	go c.Source.Run(ctx, feed)

	select {
	case <-feed.connected:
	case <-feed.stopped:
		return res, errors.Wrap(feed.stopErr(), "frame source")
	case <-ctx.Done():
		return res, ctx.Err()
	}
	fmt.Fprintf(c.Out, "Connected to %s\n\n", c.Source.Name())

	// ---------------- Baseline ----------------
	fmt.Fprintln(c.Out, "Step 1/2: Baseline")
	fmt.Fprintln(c.Out, "Leave the pad unloaded and do not touch it.")
	c.waitEnter(in, fmt.Sprintf("Press ENTER to capture %d frames...", c.Params.ZeroFrames))

	calib := fusion.NewCalibrator(c.Params)
	pipeline := fusion.NewPipeline(c.Params, calib, nil)
	drain(feed.frames)
	calib.StartCalibration()
	for calib.Calibrating() {
		f, err := c.next(ctx, feed)
		if err != nil {
			return res, err
		}
		calib.AddSample(f)
	}
	res.Noise = calib.Report()
	res.NoiseConfidence = c.noiseConfidence(res.Noise)
	for i := range res.Noise.StdDevZ {
		fmt.Fprintf(c.Out, "  sensor %d: rest z=%.2f stddev=%.3f gated=%v\n",
			i, res.Noise.MeanZ[i], res.Noise.StdDevZ[i], res.Noise.Gated[i])
		if !res.Noise.Gated[i] {
			res.Notes = append(res.Notes, fmt.Sprintf("sensor %d rest noise exceeds the noise gate", i))
		}
	}
	fmt.Fprintf(c.Out, "Baseline confidence=%.2f\n\n", res.NoiseConfidence)

	// ---------------- Corner presses ----------------
	fmt.Fprintln(c.Out, "Step 2/2: Corner presses")
	fmt.Fprintln(c.Out, "For each sensor, press and hold firmly right above it.")
	for i, corner := range c.Params.Layout {
		fmt.Fprintf(c.Out, "Sensor %d (layout corner %+.0f,%+.0f).\n", i, corner.X, corner.Y)
		c.waitEnter(in, "Press and hold, then press ENTER...")
		drain(feed.frames)

		press, err := c.capturePress(ctx, feed, pipeline)
		press.Sensor, press.Corner = i, corner
		if err != nil {
			fmt.Fprintf(c.Out, "  Warning: capture failed: %v\n", err)
			res.Notes = append(res.Notes, fmt.Sprintf("sensor %d: %v", i, err))
			press.Confidence = confFloor
		} else {
			fmt.Fprintf(c.Out, "  read x=%+.2f y=%+.2f intensity=%.2f force=%.2fN conf=%.2f\n",
				press.X, press.Y, press.Intensity, press.Force, press.Confidence)
		}
		res.Presses = append(res.Presses, press)
	}

	res.InvertX, res.InvertY = suggestInversion(c.Params, res.Presses)
	res.Confidence = overallCalibrationConfidence(res)
	fmt.Fprintf(c.Out, "\nSuggested INVERT_X=%v INVERT_Y=%v (currently %v, %v)\n",
		res.InvertX, res.InvertY, c.Params.InvertX, c.Params.InvertY)
	fmt.Fprintf(c.Out, "Overall confidence: %.2f\n", res.Confidence)
	return res, nil
}

func (c *Calibration) next(ctx context.Context, feed *calibrationFeed) (frame.RawFrame, error) {
	select {
	case f := <-feed.frames:
		return f, nil
	case <-feed.stopped:
		return frame.RawFrame{}, feed.stopErr()
	case <-ctx.Done():
		return frame.RawFrame{}, ctx.Err()
	}
}

func (c *Calibration) capturePress(ctx context.Context, feed *calibrationFeed, pipeline *fusion.Pipeline) (CornerPress, error) {
	ctx, cancel := context.WithTimeout(ctx, c.PressTimeout)
	defer cancel()

	var xs, ys []float64
	var press CornerPress
	for len(xs) < pressFrames {
		f, err := c.next(ctx, feed)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return press, errors.Errorf("only %d of %d frames above intensity %.1f", len(xs), pressFrames, pressIntensity)
			}
			return press, err
		}
		r, err := pipeline.Process(f)
		if err != nil {
			return press, err
		}
		if r.Intensity < pressIntensity {
			continue
		}
		xs = append(xs, r.X)
		ys = append(ys, r.Y)
		press.Intensity += r.Intensity
		press.Force += r.Force
	}
	n := float64(len(xs))
	press.Samples = len(xs)
	press.Intensity /= n
	press.Force /= n
	press.X, press.StdDevX = stat.MeanStdDev(xs, nil)
	press.Y, press.StdDevY = stat.MeanStdDev(ys, nil)
	press.Confidence = stillnessConfidence((press.StdDevX+press.StdDevY)/2, 0.05, 0.3)
	return press, nil
}

func (c *Calibration) noiseConfidence(r fusion.NoiseReport) float64 {
	var s float64
	for _, std := range r.StdDevZ {
		s += std
	}
	s /= float64(len(r.StdDevZ))
	return stillnessConfidence(s, c.Params.NoiseGate/6, c.Params.NoiseGate/3)
}

func (c *Calibration) waitEnter(in *bufio.Reader, prompt string) {
	fmt.Fprint(c.Out, prompt)
	_, _ = in.ReadString('\n')
}

// suggestInversion keeps an invert flag when presses already read toward
// their corners on that axis and flips it otherwise.
func suggestInversion(p fusion.Params, presses []CornerPress) (bool, bool) {
	var agreeX, agreeY float64
	for _, pr := range presses {
		if pr.Samples == 0 {
			continue
		}
		agreeX += pr.X * pr.Corner.X
		agreeY += pr.Y * pr.Corner.Y
	}
	invertX, invertY := p.InvertX, p.InvertY
	if agreeX < 0 {
		invertX = !invertX
	}
	if agreeY < 0 {
		invertY = !invertY
	}
	return invertX, invertY
}

// stillnessConfidence maps a standard deviation to [confFloor, 1], linear
// between good and bad.
func stillnessConfidence(s, good, bad float64) float64 {
	switch {
	case s <= good:
		return 1.0
	case s >= bad:
		return confFloor
	default:
		t := (s - good) / (bad - good)
		return clamp01(1.0 - 0.95*t)
	}
}

func overallCalibrationConfidence(res CalibrationResult) float64 {
	if len(res.Presses) == 0 {
		return clamp01(0.4 * res.NoiseConfidence)
	}
	var presses float64
	for _, p := range res.Presses {
		presses += p.Confidence
	}
	presses /= float64(len(res.Presses))
	return clamp01(0.4*res.NoiseConfidence + 0.6*presses)
}

// WriteCalibration stores res as indented JSON under dir and returns the path.
func WriteCalibration(dir string, res CalibrationResult) (string, error) {
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("%s/%s_tactile_calibration.json", dir, ts)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", errors.Wrap(err, "write calibration")
	}
	return name, nil
}

func drain(ch chan frame.RawFrame) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
