package main

import (
	"flag"
	"log"
	"os"

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

	logger := logging.NewLogger("console", cfg.LogLevel)
	defer logger.Sync()
	logger.Info("starting tactile console (MQTT subscriber)")

	if err := app.RunConsoleMQTT(cfg, os.Stdout, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}
