package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const mqttTimeout = 5 * time.Second

// MQTTBus is a Bus over an MQTT broker with JSON payloads. Each topic maps to
// "<prefix>/<topic>". Publishing is QoS 0 and never waits for the broker.
type MQTTBus struct {
	client mqtt.Client
	prefix string
	depth  int
	log    *slog.Logger

	mu     sync.Mutex
	subs   map[Topic][]chan Event
	closed bool
}

// NewMQTTBus connects to broker. An empty clientID gets a random one.
func NewMQTTBus(broker, prefix, clientID string, log *slog.Logger) (*MQTTBus, error) {
	if clientID == "" {
		clientID = "pandad-" + uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	b := &MQTTBus{
		prefix: strings.TrimSuffix(prefix, "/"),
		depth:  DefaultQueueDepth,
		log:    log.With("broker", broker),
		subs:   make(map[Topic][]chan Event),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warn("mqtt connection lost", "err", err)
	})
	// subscriptions are re-established on every (re)connect
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.mu.Lock()
		topics := make([]Topic, 0, len(b.subs))
		for t := range b.subs {
			topics = append(topics, t)
		}
		b.mu.Unlock()
		for _, t := range topics {
			if err := b.subscribeBroker(c, t); err != nil {
				b.log.Error("mqtt resubscribe failed", "topic", t, "err", err)
			}
		}
	})

	b.client = mqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return b, nil
}

// BrokerTopic returns the MQTT topic for t.
func BrokerTopic(prefix string, t Topic) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + "/" + string(t)
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses a wire payload.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// Publish stamps and sends ev.
func (b *MQTTBus) Publish(topic Topic, ev Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	data, err := EncodeEvent(stamp(ev))
	if err != nil {
		return err
	}
	token := b.client.Publish(BrokerTopic(b.prefix, topic), 0, false, data)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

// Subscribe returns a channel fed by the broker subscription of topic.
func (b *MQTTBus) Subscribe(topic Topic) (<-chan Event, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan Event, b.depth)
	first := len(b.subs[topic]) == 0
	b.subs[topic] = append(b.subs[topic], ch)
	b.mu.Unlock()

	if first {
		if err := b.subscribeBroker(b.client, topic); err != nil {
			return nil, err
		}
	}
	return ch, nil
}

func (b *MQTTBus) subscribeBroker(c mqtt.Client, topic Topic) error {
	token := c.Subscribe(BrokerTopic(b.prefix, topic), 0, func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := DecodeEvent(msg.Payload())
		if err != nil {
			b.log.Warn("dropping malformed event", "topic", topic, "err", err)
			return
		}
		b.dispatch(topic, ev)
	})
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt subscribe %s: timeout", topic)
	}
	return token.Error()
}

func (b *MQTTBus) dispatch(topic Topic, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs[topic] {
		offer(ch, ev)
	}
}

// Close disconnects from the broker and closes every subscription channel.
func (b *MQTTBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
	b.mu.Unlock()
	b.client.Disconnect(250)
	return nil
}
