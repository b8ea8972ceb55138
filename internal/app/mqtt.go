package app

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// Topics are the MQTT topics readings and status go to.
type Topics struct {
	Contact string
	Force   string
	Status  string
}

// ForceMessage is the payload of the force topic.
type ForceMessage struct {
	Force float64 `json:"force_n"`
	Z     float64 `json:"z"`
	Text  string  `json:"text"`
}

// StatusMessage is the retained payload of the status topic.
type StatusMessage struct {
	Status  Status `json:"status"`
	Source  string `json:"source,omitempty"`
	Message string `json:"message"`
}

// publishClient is the part of mqtt.Client the publisher uses.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher mirrors engine output to MQTT. Readings go out at QoS 0 and
// nothing waits on a token in the frame loop.
type Publisher struct {
	NopObserver
	client publishClient
	topics Topics
	logger *zap.SugaredLogger

	last   StatusMessage
	failed atomic.Uint64
}

func NewPublisher(client publishClient, topics Topics, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{client: client, topics: topics, logger: logger}
}

// Failed counts publishes whose token reported an error.
func (p *Publisher) Failed() uint64 { return p.failed.Load() }

func (p *Publisher) OnState(s State) {
	msg := StatusMessage{Status: s.Status, Source: s.Source, Message: s.Message}
	if msg == p.last {
		return
	}
	p.last = msg
	p.publish(p.topics.Status, 1, true, msg)
}

func (p *Publisher) OnReading(r fusion.Reading) {
	p.publish(p.topics.Contact, 0, false, r.Contact)
	p.publish(p.topics.Force, 0, false, ForceMessage{
		Force: r.Force,
		Z:     r.Z,
		Text:  r.ForceValue().String(),
	})
}

func (p *Publisher) publish(topic string, qos byte, retained bool, v interface{}) {
	if topic == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Errorw("mqtt marshal error", "topic", topic, "error", err)
		return
	}
	token := p.client.Publish(topic, qos, retained, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			p.onFailure(topic, err)
		}
	default:
		if qos == 0 {
			return
		}
		go func() {
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				p.onFailure(topic, token.Error())
			}
		}()
	}
}

func (p *Publisher) onFailure(topic string, err error) {
	n := p.failed.Add(1)
	if n <= 3 || n%1000 == 0 {
		p.logger.Warnw("mqtt publish error", "topic", topic, "error", err, "failed", n)
	}
}

// connectMQTT connects a client and waits for the broker.
func connectMQTT(broker, clientID string, logger *zap.SugaredLogger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect to MQTT broker %s", broker)
	}
	logger.Infof("connected to MQTT broker at %s", broker)
	return client, nil
}
