package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/logging"
)

// doneToken is an already completed mqtt.Token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }

func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublishClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakePublishClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakePublishClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

var testTopics = Topics{Contact: "tactile/contact", Force: "tactile/force", Status: "tactile/status"}

func TestPublisherStatus(t *testing.T) {
	client := &fakePublishClient{}
	p := NewPublisher(client, testTopics, logging.NewTestLogger(t))

	p.OnState(State{Status: StatusCalibrating, Source: "mock", Message: "calibrating", Collected: 1})
	p.OnState(State{Status: StatusCalibrating, Source: "mock", Message: "calibrating", Collected: 2})
	p.OnState(State{Status: StatusConnected, Source: "mock", Message: "calibrated"})

	msgs := client.sent()
	test.That(t, len(msgs), test.ShouldEqual, 2)
	for _, m := range msgs {
		test.That(t, m.topic, test.ShouldEqual, testTopics.Status)
		test.That(t, m.qos, test.ShouldEqual, byte(1))
		test.That(t, m.retained, test.ShouldBeTrue)
	}
	var last StatusMessage
	test.That(t, json.Unmarshal(msgs[1].payload, &last), test.ShouldBeNil)
	test.That(t, last, test.ShouldResemble, StatusMessage{Status: StatusConnected, Source: "mock", Message: "calibrated"})
}

func TestPublisherReading(t *testing.T) {
	client := &fakePublishClient{}
	p := NewPublisher(client, testTopics, logging.NewTestLogger(t))

	p.OnReading(fusion.Reading{
		Contact: fusion.Contact{X: 0.5, Y: -0.25, Intensity: 0.75},
		Z:       0.4,
		Force:   8.4,
	})
	msgs := client.sent()
	test.That(t, len(msgs), test.ShouldEqual, 2)

	test.That(t, msgs[0].topic, test.ShouldEqual, testTopics.Contact)
	test.That(t, msgs[0].qos, test.ShouldEqual, byte(0))
	test.That(t, msgs[0].retained, test.ShouldBeFalse)
	var c fusion.Contact
	test.That(t, json.Unmarshal(msgs[0].payload, &c), test.ShouldBeNil)
	test.That(t, c, test.ShouldResemble, fusion.Contact{X: 0.5, Y: -0.25, Intensity: 0.75})

	test.That(t, msgs[1].topic, test.ShouldEqual, testTopics.Force)
	var f ForceMessage
	test.That(t, json.Unmarshal(msgs[1].payload, &f), test.ShouldBeNil)
	test.That(t, f.Force, test.ShouldEqual, 8.4)
	test.That(t, f.Z, test.ShouldEqual, 0.4)
	test.That(t, f.Text, test.ShouldEndWith, "N")
	test.That(t, p.Failed(), test.ShouldEqual, uint64(0))
}

func TestPublisherCountsFailures(t *testing.T) {
	client := &fakePublishClient{err: errors.New("not connected")}
	p := NewPublisher(client, testTopics, logging.NewTestLogger(t))
	p.OnReading(fusion.Reading{})
	test.That(t, p.Failed(), test.ShouldEqual, uint64(2))
}

func TestPublisherSkipsEmptyTopics(t *testing.T) {
	client := &fakePublishClient{}
	p := NewPublisher(client, Topics{Contact: "tactile/contact"}, logging.NewTestLogger(t))
	p.OnReading(fusion.Reading{})
	p.OnState(State{Status: StatusVirtual})
	test.That(t, len(client.sent()), test.ShouldEqual, 1)
}
