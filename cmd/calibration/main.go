// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided calibration for the four-sensor tactile pad.
//  1. Baseline: captures ZERO_FRAMES unloaded frames and reports per-sensor rest noise.
//  2. Corner presses: the user presses above each sensor; the fused position of each
//     press is compared with the sensor's layout corner.
//
// Output:
//
//	Writes a JSON file under -out with noise statistics, the measured presses, a
//	confidence score and suggested INVERT_X / INVERT_Y values.
//
// Run:
//
//	go run ./cmd/calibration -config tactile_config.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relabs-tech/tactile_viewer/internal/app"
	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/logging"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

func main() {
	configPath := flag.String("config", "tactile_config.txt", "Path to configuration file")
	outDir := flag.String("out", ".", "Directory the calibration JSON is written to")
	timeout := flag.Duration("press-timeout", 10*time.Second, "How long to wait for each corner press")
	flag.Parse()

	fmt.Println("=== Guided Calibration (Baseline + Corner presses) ===")
	fmt.Println()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		fatal(fmt.Errorf("failed to load config from %s: %w", *configPath, err))
	}
	logger := logging.NewLogger("calibration", "warn")
	defer logger.Sync()

	var src transport.Source
	switch cfg.FrameSource {
	case config.SourceMock:
		src = transport.NewMockSource(cfg.Fusion(), 100, clock.New(), rand.New(rand.NewSource(time.Now().UnixNano())))
	case config.SourceReplay:
		src = transport.NewReplaySource(cfg.ReplayFile, cfg.ReplayRateHz, true, clock.New(), logger)
	default:
		src = transport.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cal := &app.Calibration{
		Params:       cfg.Fusion(),
		Source:       src,
		In:           os.Stdin,
		Out:          os.Stdout,
		PressTimeout: *timeout,
	}
	res, err := cal.Run(ctx)
	if err != nil {
		fatal(err)
	}

	name, err := app.WriteCalibration(*outDir, res)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("\nWrote: %s\n", name)
	fmt.Println("Calibration complete.")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
