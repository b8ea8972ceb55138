package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// DisplayData holds the latest MQTT data for the OLED.
type DisplayData struct {
	mu sync.RWMutex

	status     StatusMessage
	haveStatus bool

	contact     fusion.Contact
	haveContact bool

	force     ForceMessage
	haveForce bool
}

type displaySnapshot struct {
	status      StatusMessage
	haveStatus  bool
	contact     fusion.Contact
	haveContact bool
	force       ForceMessage
	haveForce   bool
}

func (d *DisplayData) snapshot() displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return displaySnapshot{
		status:      d.status,
		haveStatus:  d.haveStatus,
		contact:     d.contact,
		haveContact: d.haveContact,
		force:       d.force,
		haveForce:   d.haveForce,
	}
}

// RunDisplay shows status, contact and force on an SSD1306 OLED.
func RunDisplay(cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return errors.Wrap(err, "failed to initialize periph")
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return errors.Wrap(err, "failed to open I2C bus")
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return multierr.Combine(errors.Wrap(err, "failed to initialize display"), bus.Close())
	}
	defer func() {
		err = multierr.Combine(err, dev.Halt(), bus.Close())
	}()
	logger.Infof("display: initialized on bus %q", cfg.DisplayI2CBus)

	if err := dev.Draw(dev.Bounds(), splashImage(), image.Point{}); err != nil {
		logger.Warnf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeDisplay(client, cfg, data, logger); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			logger.Info("display: shutting down")
			return nil
		case <-ticker.C:
			if err := dev.Draw(dev.Bounds(), statusImage(data.snapshot()), image.Point{}); err != nil {
				logger.Warnf("display: error updating display: %v", err)
			}
		}
	}
}

func subscribeDisplay(client mqtt.Client, cfg *config.Config, data *DisplayData, logger *zap.SugaredLogger) error {
	subs := []struct {
		topic string
		apply func(payload []byte) error
	}{
		{cfg.TopicStatus, func(b []byte) error {
			var s StatusMessage
			if err := json.Unmarshal(b, &s); err != nil {
				return err
			}
			data.mu.Lock()
			data.status, data.haveStatus = s, true
			data.mu.Unlock()
			return nil
		}},
		{cfg.TopicContact, func(b []byte) error {
			var c fusion.Contact
			if err := json.Unmarshal(b, &c); err != nil {
				return err
			}
			data.mu.Lock()
			data.contact, data.haveContact = c, true
			data.mu.Unlock()
			return nil
		}},
		{cfg.TopicForce, func(b []byte) error {
			var f ForceMessage
			if err := json.Unmarshal(b, &f); err != nil {
				return err
			}
			data.mu.Lock()
			data.force, data.haveForce = f, true
			data.mu.Unlock()
			return nil
		}},
	}
	for _, sub := range subs {
		token := client.Subscribe(sub.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			if err := sub.apply(msg.Payload()); err != nil {
				logger.Warnf("display: %s unmarshal error: %v", msg.Topic(), err)
			}
		})
		token.Wait()
		if token.Error() != nil {
			return errors.Wrapf(token.Error(), "subscribe %s", sub.topic)
		}
		logger.Infof("display: subscribed to %s", sub.topic)
	}
	return nil
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawLine(d *font.Drawer, x, y int, s string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func statusImage(s displaySnapshot) *image1bit.VerticalLSB {
	img, d := newCanvas()

	if !s.haveStatus {
		drawLine(d, 0, 26, "Tactile pad")
		drawLine(d, 0, 39, "Waiting...")
		return img
	}
	drawLine(d, 0, 13, string(s.status.Status))

	if s.status.Status != StatusConnected || !s.haveContact {
		drawLine(d, 0, 39, "no contact")
		return img
	}
	drawLine(d, 0, 26, fmt.Sprintf("X:%6.2f Y:%6.2f", s.contact.X, s.contact.Y))
	drawLine(d, 0, 39, fmt.Sprintf("I: %4.0f%%", s.contact.Intensity*100))
	if s.haveForce {
		drawLine(d, 0, 52, "F: "+s.force.Text)
	}
	return img
}

func splashImage() *image1bit.VerticalLSB {
	img, d := newCanvas()
	drawLine(d, 10, 26, "Tactile Pad")
	drawLine(d, 5, 43, "Waiting for")
	drawLine(d, 25, 56, "broker")
	return img
}
