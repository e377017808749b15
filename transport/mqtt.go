package transport

import (
	"context"
	"fmt"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/swdee/go-visnav/config"
	"github.com/swdee/go-visnav/wire"
	"strings"
	"sync"
	"time"
)

// publishTimeout bounds how long a single publish may block
const publishTimeout = 250 * time.Millisecond

// MQTT publishes commands to a broker, one topic per channel.  The payload is
// the single command byte.
type MQTT struct {
	// connMu serializes connection attempts, mu guards client only so
	// Connected and Send never wait on a broker handshake
	connMu  sync.Mutex
	mu      sync.Mutex
	l       hclog.Logger
	cfg     config.MQTT
	timeout time.Duration
	client  mqtt.Client
}

// NewMQTT returns an MQTT link.  A client id is generated when none is
// configured.
func NewMQTT(cfg config.MQTT, connectTimeout time.Duration, l hclog.Logger) (*MQTT, error) {

	if cfg.Broker == "" {
		return nil, fmt.Errorf("%w: mqtt broker not set", config.ErrInvalidConfiguration)
	}

	if cfg.ClientID == "" {
		cfg.ClientID = "visnav-" + uuid.NewString()[:8]
	}

	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}

	if l == nil {
		l = hclog.NewNullLogger()
	}

	return &MQTT{
		l:       l,
		cfg:     cfg,
		timeout: connectTimeout,
	}, nil
}

// Name returns the link description
func (m *MQTT) Name() string {
	return "mqtt:" + m.cfg.Broker
}

// Topic returns the topic a channel is published on
func (m *MQTT) Topic(ch wire.Channel) string {
	return strings.TrimSuffix(m.cfg.TopicPrefix, "/") + "/" + ch.String()
}

// ClientID returns the client id presented to the broker
func (m *MQTT) ClientID() string {
	return m.cfg.ClientID
}

// Connect connects to the broker with automatic reconnection enabled
func (m *MQTT) Connect(ctx context.Context) bool {

	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.Connected() {
		return true
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	opts.SetUsername(m.cfg.Username)
	opts.SetPassword(m.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(m.timeout)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.l.Info("connected to broker", "broker", m.cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		m.l.Warn("connection lost", "err", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		m.l.Warn("connect cancelled", "broker", m.cfg.Broker)
		client.Disconnect(0)
		return false
	case <-time.After(m.timeout):
		m.l.Warn("connect timed out", "broker", m.cfg.Broker, "timeout", m.timeout)
		client.Disconnect(0)
		return false
	}

	if err := token.Error(); err != nil {
		m.l.Error("failed to connect to broker", "broker", m.cfg.Broker, "err", err)
		return false
	}

	m.mu.Lock()
	old := m.client
	m.client = client
	m.mu.Unlock()

	if old != nil {
		old.Disconnect(0)
	}

	return true
}

// Send publishes the value on the channel topic
func (m *MQTT) Send(ch wire.Channel, value byte) bool {

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || !client.IsConnectionOpen() {
		return false
	}

	token := client.Publish(m.Topic(ch), m.cfg.QoS, false, []byte{value})

	if !token.WaitTimeout(publishTimeout) {
		m.l.Warn("publish timed out", "channel", ch.String())
		return false
	}

	if err := token.Error(); err != nil {
		m.l.Warn("publish failed", "channel", ch.String(), "err", err)
		return false
	}

	m.l.Trace("publish", "topic", m.Topic(ch), "value", value)

	return true
}

// Connected returns true while the broker connection is open
func (m *MQTT) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsConnectionOpen()
}

// Disconnect closes the broker connection
func (m *MQTT) Disconnect() {

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return
	}

	client.Disconnect(250)
	m.l.Info("disconnected from broker")
}
