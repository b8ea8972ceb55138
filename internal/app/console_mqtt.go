package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// RunConsoleMQTT prints contact, force and status messages until Ctrl+C.
func RunConsoleMQTT(cfg *config.Config, out io.Writer, logger *zap.SugaredLogger) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	handlers := map[string]mqtt.MessageHandler{
		cfg.TopicContact: func(_ mqtt.Client, msg mqtt.Message) {
			var c fusion.Contact
			if err := json.Unmarshal(msg.Payload(), &c); err != nil {
				logger.Warnf("console: contact unmarshal error: %v", err)
				return
			}
			fmt.Fprintln(out, formatContact(c))
		},
		cfg.TopicForce: func(_ mqtt.Client, msg mqtt.Message) {
			var f ForceMessage
			if err := json.Unmarshal(msg.Payload(), &f); err != nil {
				logger.Warnf("console: force unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(out, "[FORCE]  F=%s  Z=%5.3f\n", f.Text, f.Z)
		},
		cfg.TopicStatus: func(_ mqtt.Client, msg mqtt.Message) {
			var s StatusMessage
			if err := json.Unmarshal(msg.Payload(), &s); err != nil {
				logger.Warnf("console: status unmarshal error: %v", err)
				return
			}
			fmt.Fprintf(out, "[STATE]  %s  %s\n", s.Status, s.Message)
		},
	}
	for topic, handler := range handlers {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			return errors.Wrapf(token.Error(), "subscribe %s", topic)
		}
		logger.Infof("console: subscribed to %s", topic)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("console: shutting down")
	return nil
}

func formatContact(c fusion.Contact) string {
	return fmt.Sprintf("[TOUCH]  X=%6.3f  Y=%6.3f  I=%5.3f", c.X, c.Y, c.Intensity)
}
