package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/relabs-tech/tactile_viewer/internal/app"
	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/logging"
)

func main() {
	configPath := flag.String("config", "tactile_config.txt", "Path to configuration file")
	shape := flag.String("shape", "", "Override SCENE_SHAPE (sphere, plane, box)")
	spacing := flag.Float64("spacing", -1, "Override GRID_SPACING (0 = auto)")
	asJSON := flag.Bool("json", false, "Write the point set as JSON instead of a report")
	flag.Parse()

	cfg, err := config.LoadOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *shape != "" {
		cfg.SceneShape = *shape
	}
	if *spacing >= 0 {
		cfg.GridSpacing = *spacing
	}

	level := cfg.LogLevel
	if *asJSON {
		// stdout carries the JSON
		level = "error"
	}
	logger := logging.NewLogger("sampler", level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.RunSampler(ctx, cfg, os.Stdout, *asJSON, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}
