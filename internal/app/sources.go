package app

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/transport"
)

// mockRateHz matches the pad firmware's frame rate.
const mockRateHz = 100

// sourceFactory returns the constructor for the configured frame source.
func sourceFactory(cfg *config.Config, clk clock.Clock, logger *zap.SugaredLogger) func() transport.Source {
	switch cfg.FrameSource {
	case config.SourceMock:
		return func() transport.Source {
			return transport.NewMockSource(cfg.Fusion(), mockRateHz, clk, rand.New(rand.NewSource(time.Now().UnixNano())))
		}
	case config.SourceReplay:
		return func() transport.Source {
			return transport.NewReplaySource(cfg.ReplayFile, cfg.ReplayRateHz, true, clk, logger.Named("replay"))
		}
	default:
		return func() transport.Source {
			return transport.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, logger.Named("serial"))
		}
	}
}

// engineConfig derives the engine settings from the loaded configuration.
func engineConfig(cfg *config.Config) EngineConfig {
	return EngineConfig{
		Fusion:        cfg.Fusion(),
		Sampler:       cfg.Sampler(),
		Field:         cfg.Field(),
		TickInterval:  cfg.TickInterval(),
		ChartInterval: cfg.ChartInterval(),
		ChartWindow:   cfg.ChartWindow,
		ViewDirection: cfg.ViewDirection,
		AutoConnect:   cfg.AutoConnect,
	}
}
