// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/tactile_viewer/internal/app"
	"github.com/relabs-tech/tactile_viewer/internal/config"
)

func main() {
	configPath := flag.String("config", "tactile_config.txt", "Path to configuration file")
	flag.Parse()

	log.Println("starting tactile viewer (mock console)")

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMockConsole(cfg, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
