package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/config"
)

// RunProducer connects to the frame source and publishes every fused reading
// to MQTT, without sampling a surface or serving a browser.
func RunProducer(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	ecfg := engineConfig(cfg)
	ecfg.AutoConnect = true
	clk := clock.New()
	engine, err := NewEngine(ecfg, nil, sourceFactory(cfg, clk, logger), clk, nil, logger.Named("engine"),
		NewPublisher(client, topics(cfg), logger.Named("mqtt")),
		&stateLogger{logger: logger},
	)
	if err != nil {
		return err
	}
	logger.Infof("producer: publishing to %s and %s", cfg.TopicContact, cfg.TopicForce)
	return engine.Run(ctx)
}

// stateLogger logs status transitions.
type stateLogger struct {
	NopObserver
	logger *zap.SugaredLogger
	last   Status
}

func (l *stateLogger) OnState(s State) {
	if s.Status == l.last {
		return
	}
	l.last = s.Status
	l.logger.Infow("status: "+string(s.Status), "source", s.Source, "message", s.Message)
}
