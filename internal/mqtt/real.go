package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Xylopyrographer/CabinMonitor/internal/device"
	"github.com/Xylopyrographer/CabinMonitor/internal/log"
	"github.com/Xylopyrographer/CabinMonitor/internal/metrics"
)

var errPublishTimeout = errors.New("mqtt: publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	Topics         Topics
	DeviceName     string
	BufferSize     int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	Logger         *zerolog.Logger
}

func (o *Options) defaults() {
	if o.ClientID == "" {
		o.ClientID = "cabin-monitor"
	}
	if o.Topics == (Topics{}) {
		o.Topics = NewTopics("")
	}
	if o.BufferSize == 0 {
		o.BufferSize = 256
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout == 0 {
		o.PublishTimeout = 5 * time.Second
	}
}

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to a broker, buffering while disconnected.
type RealPublisher struct {
	client  client
	topics  Topics
	device  string
	timeout time.Duration
	log     zerolog.Logger
	newID   func() string

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher connects to the broker. An unreachable broker is not an
// error: the client keeps retrying in the background and messages are
// buffered until it connects. A rejected connection is.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	opts.defaults()
	var p *RealPublisher

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(opts.Topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) {
			p.log.Info().Str("broker", opts.Broker).Msg("mqtt connected")
			go p.flush()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn().Err(err).Msg("mqtt connection lost, buffering")
		})

	c := paho.NewClient(co)
	p = newPublisher(c, opts)

	token := c.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		p.log.Warn().Str("broker", opts.Broker).Msg("mqtt broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(c client, opts Options) *RealPublisher {
	opts.defaults()
	l := log.WithComponent("mqtt")
	if opts.Logger != nil {
		l = *opts.Logger
	}
	return &RealPublisher{
		client:  c,
		topics:  opts.Topics,
		device:  opts.DeviceName,
		timeout: opts.PublishTimeout,
		log:     l,
		newID:   uuid.NewString,
		buffer:  newRingBuffer(opts.BufferSize),
	}
}

// Publish sends a device event at QoS 0.
func (p *RealPublisher) Publish(e device.Event) error {
	payload, err := FormatPayload(e, p.newID(), p.device)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(pending{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(e SystemEvent) error {
	payload, err := FormatSystemPayload(e)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(pending{topic: p.topics.System, payload: payload, qos: 1, retained: e.Retained})
}

func (p *RealPublisher) send(m pending) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		dropped := p.buffer.push(m)
		p.mu.Unlock()
		metrics.RecordTelemetry("buffered")
		if dropped {
			metrics.RecordTelemetry("dropped")
		}
		return nil
	}
	if err := p.publish(m); err != nil {
		metrics.RecordTelemetry("dropped")
		return err
	}
	metrics.RecordTelemetry("published")
	return nil
}

func (p *RealPublisher) publish(m pending) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(p.timeout) {
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// flush replays buffered messages after a reconnect. Messages that fail
// again go back into the buffer.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	dropped := p.buffer.dropped
	msgs := p.buffer.drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return
	}
	if dropped > 0 {
		p.log.Warn().Int("dropped", dropped).Msg("mqtt buffer overflowed while offline")
	}

	for i, m := range msgs {
		if err := p.publish(m); err != nil {
			p.log.Warn().Err(err).Int("remaining", len(msgs)-i).Msg("mqtt replay interrupted")
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.buffer.push(rest)
			}
			p.mu.Unlock()
			return
		}
		metrics.RecordTelemetry("published")
	}
	p.log.Info().Int("messages", len(msgs)).Msg("mqtt buffer replayed")
}

// Buffered returns the number of messages waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker connection is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects, allowing one second for in-flight messages.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
