package clientmqtt

import (
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/helioz2000/1820bridge/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	keepAlive      = 30 * time.Second
	quiesce        = 250 // ms

	eventBuffer = 64
)

// ClientMQTT структура клиента MQTT. Paho callbacks never touch bridge state,
// they only queue events read through Events.
type ClientMQTT struct {
	log    *logger.Log
	cfg    MQTTConf
	client mqtt.Client
	events chan Event
}

// NewClient конструктор. Paho reconnect logic is disabled, the caller decides
// when to call Connect again.
func NewClient(log logger.Logger, cfg MQTTConf) *ClientMQTT {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID()
	}

	c := &ClientMQTT{
		log:    log.With(logger.Fields{"module": "mqtt"}),
		cfg:    cfg,
		events: make(chan Event, eventBuffer),
	}

	if cfg.Debug {
		mqtt.ERROR = stdLogger(c.log, logrus.ErrorLevel)
		mqtt.CRITICAL = stdLogger(c.log, logrus.ErrorLevel)
		mqtt.WARN = stdLogger(c.log, logrus.WarnLevel)
		mqtt.DEBUG = stdLogger(c.log, logrus.DebugLevel)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.broker()).
		SetUsername(cfg.User).
		SetPassword(cfg.Password).
		SetClientID(cfg.ClientID).
		SetDefaultPublishHandler(c.messageHandler).
		SetConnectionLostHandler(c.connectLostHandler).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	c.client = mqtt.NewClient(opts)
	return c
}

// DefaultClientID returns a client id unique to this process.
func DefaultClientID() string {
	return "1820bridge-" + uuid.New().String()[:8]
}

func stdLogger(l *logger.Log, level logrus.Level) *log.Logger {
	return log.New(l.Writer(level), "paho: ", 0)
}

// ClientID returns the id used towards the broker.
func (c *ClientMQTT) ClientID() string {
	return c.cfg.ClientID
}

// Events delivers connection state changes and received messages.
func (c *ClientMQTT) Events() <-chan Event {
	return c.events
}

// Connect starts a connection attempt and returns immediately. The result
// arrives as EventConnected or EventConnectFailed.
func (c *ClientMQTT) Connect() {
	c.log.Infof("connecting to %s as %s", c.cfg.broker(), c.cfg.ClientID)
	token := c.client.Connect()
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			c.emit(Event{Kind: EventConnectFailed, Err: err})
			return
		}
		c.emit(Event{Kind: EventConnected})
	}()
}

// Disconnect closes the connection if there is one.
func (c *ClientMQTT) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(quiesce)
		c.log.Info("disconnected from broker")
	}
}

// IsConnected reports whether the broker link is up.
func (c *ClientMQTT) IsConnected() bool {
	return c.client.IsConnected()
}

// Publish sends payload and waits for the token. Failures are returned, never
// retried.
func (c *ClientMQTT) Publish(topic, payload string, retain bool) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, c.cfg.Qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	c.log.Tracef("published %s = %q retain=%v", topic, payload, retain)
	return nil
}

// ClearRetained removes the retained message of topic by publishing an empty
// retained payload.
func (c *ClientMQTT) ClearRetained(topic string) error {
	return c.Publish(topic, "", true)
}

// Subscribe adds a subscription. Messages arrive as EventMessage.
func (c *ClientMQTT) Subscribe(topic string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Subscribe(topic, c.cfg.Qos, nil)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout after %v", topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.log.Debugf("topic %s subscribed", topic)
	return nil
}

// emit queues a state event. State events block until there is room so the
// connection state machine never misses a transition.
func (c *ClientMQTT) emit(ev Event) {
	c.events <- ev
}

func (c *ClientMQTT) connectLostHandler(_ mqtt.Client, err error) {
	c.log.Errorf("server connect lost: %v", err)
	c.emit(Event{Kind: EventConnectionLost, Err: err})
}

func (c *ClientMQTT) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.log.Debugf("received message: %q from topic: %s", msg.Payload(), msg.Topic())
	ev := Event{
		Kind:     EventMessage,
		Topic:    msg.Topic(),
		Payload:  append([]byte(nil), msg.Payload()...),
		Retained: msg.Retained(),
	}
	select {
	case c.events <- ev:
	default:
		c.log.Warnf("event queue full, message on %s dropped", msg.Topic())
	}
}

// FormatValue renders v with a printf style format such as "%.1f".
func FormatValue(format string, v float64) string {
	return fmt.Sprintf(format, v)
}
