package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/obsidianstack/sensorsd/internal/config"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttDisconnectWait = 250 // milliseconds
)

// MQTT publishes events as JSON to a per-sensor topic.
type MQTT struct {
	topic   string
	qos     byte
	publish func(topic string, qos byte, payload []byte) error
	close   func()
}

// NewMQTT connects to the configured broker. The client reconnects on its
// own after the initial connection succeeds.
func NewMQTT(cfg config.MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password())
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("notify: mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("notify: mqtt connection lost", "broker", cfg.Broker, "err", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("notify: mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("notify: mqtt connect %s: %w", cfg.Broker, err)
	}

	return &MQTT{
		topic: cfg.Topic,
		qos:   cfg.QoS,
		publish: func(topic string, qos byte, payload []byte) error {
			token := client.Publish(topic, qos, false, payload)
			if !token.WaitTimeout(mqttConnectTimeout) {
				return fmt.Errorf("publish to %s timed out", topic)
			}
			return token.Error()
		},
		close: func() { client.Disconnect(mqttDisconnectWait) },
	}, nil
}

// Name implements Notifier.
func (m *MQTT) Name() string { return "mqtt" }

// Notify implements Notifier.
func (m *MQTT) Notify(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	topic := formatTopic(m.topic, ev)
	if err := m.publish(topic, m.qos, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close implements Notifier.
func (m *MQTT) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}

// formatTopic replaces the {sensor} and {device} placeholders of pattern.
func formatTopic(pattern string, ev Event) string {
	return strings.NewReplacer(
		"{sensor}", ev.Sensor,
		"{device}", ev.Device,
	).Replace(pattern)
}
