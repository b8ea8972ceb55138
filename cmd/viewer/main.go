// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/tactile_viewer/internal/app"
	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/logging"
)

func main() {
	configPath := flag.String("config", "tactile_config.txt", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := logging.NewLogger("viewer", cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting tactile viewer (serial → fusion → web)")

	if err := app.RunViewer(cfg, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}
