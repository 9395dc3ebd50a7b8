// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/hydrostat/internal/config"
)

const (
	mqttPublishTimeout    = 5 * time.Second
	mqttDisconnectQuiesce = 1000 // milliseconds
	mqttKeepAlive         = 60 * time.Second

	availabilityOnline  = "online"
	availabilityOffline = "offline"
)

// MQTT errors
var (
	ErrMQTTConnect = errors.New("mqtt: connection failed")
	ErrMQTTPublish = errors.New("mqtt: publish failed")
)

// Encoding selects the payload format of MQTT messages
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingCBOR
)

// ParseEncoding accepts "json" (or empty) and "cbor"
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return EncodingJSON, nil
	case "cbor":
		return EncodingCBOR, nil
	}
	return EncodingJSON, fmt.Errorf("unknown payload encoding %q", s)
}

// Marshal encodes v in e's format
func (e Encoding) Marshal(v any) ([]byte, error) {
	if e == EncodingCBOR {
		return cbor.Marshal(v)
	}
	return json.Marshal(v)
}

// Topics builds topic names under a prefix
type Topics struct {
	Prefix string
}

func (t Topics) join(parts ...string) string {
	prefix := strings.Trim(t.Prefix, "/")
	if prefix == "" {
		return strings.Join(parts, "/")
	}
	return prefix + "/" + strings.Join(parts, "/")
}

// Status is the full status document topic
func (t Topics) Status() string { return t.join("status") }

// Availability carries online/offline and the last will
func (t Topics) Availability() string { return t.join("availability") }

// Relay is the per-relay state topic
func (t Topics) Relay(key string) string { return t.join("relay", key) }

// Sensor is the per-sensor value topic
func (t Topics) Sensor(name string) string { return t.join("sensor", name) }

// publisher is the part of the paho client the sink uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes status documents to a broker
type MQTTSink struct {
	client   publisher
	topics   Topics
	qos      byte
	retain   bool
	encoding Encoding
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewMQTTSink connects to the broker in cfg. The broker publishes "offline"
// on the availability topic if the process dies without closing the sink.
func NewMQTTSink(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	enc, err := ParseEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	topics := Topics{Prefix: cfg.TopicPrefix}
	qos := byte(cfg.QoS)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetWill(topics.Availability(), availabilityOffline, qos, true)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		c.Publish(topics.Availability(), qos, true, availabilityOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	return &MQTTSink{
		client:   client,
		topics:   topics,
		qos:      qos,
		retain:   cfg.Retain,
		encoding: enc,
		logger:   logger,
	}, nil
}

// Name returns "mqtt"
func (m *MQTTSink) Name() string {
	return "mqtt"
}

// Export publishes the document plus one message per relay and sensor
func (m *MQTTSink) Export(ctx context.Context, st Status) error {
	msgs, err := m.messages(st)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.publish(msg.topic, msg.payload); err != nil {
			return err
		}
	}
	return nil
}

type mqttMessage struct {
	topic   string
	payload []byte
}

func (m *MQTTSink) messages(st Status) ([]mqttMessage, error) {
	doc, err := m.encoding.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding status: %w", err)
	}

	msgs := make([]mqttMessage, 0, 1+len(st.Relays)+len(st.Sensors))
	msgs = append(msgs, mqttMessage{topic: m.topics.Status(), payload: doc})

	for _, r := range st.Relays {
		state := "OFF"
		if r.On {
			state = "ON"
		}
		msgs = append(msgs, mqttMessage{topic: m.topics.Relay(r.Key), payload: []byte(state)})
	}
	for _, s := range st.Sensors {
		v := strconv.FormatFloat(s.Value, 'f', -1, 64)
		msgs = append(msgs, mqttMessage{topic: m.topics.Sensor(s.Name), payload: []byte(v)})
	}
	return msgs, nil
}

func (m *MQTTSink) publish(topic string, payload []byte) error {
	if !m.client.IsConnected() {
		return fmt.Errorf("%w: not connected", ErrMQTTPublish)
	}
	token := m.client.Publish(topic, m.qos, m.retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrMQTTPublish, topic, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMQTTPublish, topic, err)
	}
	return nil
}

// Close announces a clean shutdown and disconnects
func (m *MQTTSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.client.IsConnected() {
		token := m.client.Publish(m.topics.Availability(), m.qos, true, availabilityOffline)
		token.WaitTimeout(mqttPublishTimeout)
	}
	m.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
