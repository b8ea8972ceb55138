// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

// RunMockConsole fuses synthetic presses and prints every tenth reading.
func RunMockConsole(cfg *config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	params := cfg.Fusion()
	src := transport.NewMockSource(params, mockRateHz, clock.New(), rand.New(rand.NewSource(time.Now().UnixNano())))
	return src.Run(ctx, newConsolePrinter(params, out, 10))
}

// consolePrinter calibrates on the first frames and prints readings.
type consolePrinter struct {
	calib    *fusion.Calibrator
	pipeline *fusion.Pipeline
	out      io.Writer
	every    int
	n        int
}

func newConsolePrinter(params fusion.Params, out io.Writer, every int) *consolePrinter {
	calib := fusion.NewCalibrator(params)
	return &consolePrinter{
		calib:    calib,
		pipeline: fusion.NewPipeline(params, calib, nil),
		out:      out,
		every:    max(every, 1),
	}
}

func (p *consolePrinter) OnConnect() {
	p.calib.StartCalibration()
	fmt.Fprintln(p.out, "calibrating, keep the pad unloaded")
}

func (p *consolePrinter) OnFrame(f frame.RawFrame) {
	if p.calib.Calibrating() {
		if p.calib.AddSample(f) {
			r := p.calib.Report()
			fmt.Fprintf(p.out, "baseline ready: stddev z = %.2f %.2f %.2f %.2f\n",
				r.StdDevZ[0], r.StdDevZ[1], r.StdDevZ[2], r.StdDevZ[3])
		}
		return
	}
	r, err := p.pipeline.Process(f)
	if err != nil {
		fmt.Fprintf(p.out, "fusion error: %v\n", err)
		return
	}
	p.n++
	if p.n%p.every != 0 {
		return
	}
	fmt.Fprintf(p.out,
		"X=%6.3f  Y=%6.3f  I=%5.3f  Z=%5.3f  F=%s\n",
		r.X, r.Y, r.Intensity, r.Z, r.ForceValue(),
	)
}

func (p *consolePrinter) OnDisconnect(err error) {
	if err != nil {
		fmt.Fprintf(p.out, "source stopped: %v\n", err)
	}
}
