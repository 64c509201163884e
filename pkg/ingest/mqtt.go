package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig configures the MQTT tracker source.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	QoS      byte
	ClientID string // generated when empty
}

// DefaultMQTTTopic is the topic tracker frames are published on.
const DefaultMQTTTopic = "puppet/tracking"

// MQTTSource subscribes to tracker frames published as JSON.
type MQTTSource struct {
	trackingIngest

	config MQTTConfig
	client mqtt.Client
}

// NewMQTTSource creates a source. It does not connect until Run.
func NewMQTTSource(config MQTTConfig, sink Sink, logger *slog.Logger) (*MQTTSource, error) {
	if config.Broker == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if config.Topic == "" {
		config.Topic = DefaultMQTTTopic
	}
	if config.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid QoS %d", config.QoS)
	}
	if config.ClientID == "" {
		config.ClientID = "puppet-" + uuid.New().String()
	}
	m := &MQTTSource{config: config}
	m.init(sink, logger, "mqtt")

	opts := mqtt.NewClientOptions().AddBroker(config.Broker).SetClientID(config.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(m.subscribe)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.logger.Warn("MQTT connection lost", "error", err)
	})
	m.client = mqtt.NewClient(opts)
	return m, nil
}

// Run connects, subscribes and blocks until ctx is cancelled. The client
// reconnects and resubscribes on its own after a lost connection.
func (m *MQTTSource) Run(ctx context.Context) error {
	m.logger.Info("connecting to MQTT", "broker", m.config.Broker, "client_id", m.config.ClientID)
	if token := m.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	<-ctx.Done()
	m.client.Disconnect(250)
	m.logger.Info("MQTT source stopped", "stats", m.Stats())
	return nil
}

func (m *MQTTSource) subscribe(c mqtt.Client) {
	token := c.Subscribe(m.config.Topic, m.config.QoS, m.handleMessage)
	if token.Wait() && token.Error() != nil {
		m.logger.Error("MQTT subscribe failed", "topic", m.config.Topic, "error", token.Error())
		return
	}
	m.logger.Info("subscribed", "topic", m.config.Topic)
}

func (m *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	m.handleJSON(msg.Payload())
}

// Stats returns source statistics.
func (m *MQTTSource) Stats() Stats {
	s := m.snapshot("mqtt")
	s.Connected = m.client.IsConnectionOpen()
	return s
}
