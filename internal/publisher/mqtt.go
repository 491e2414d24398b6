package publisher

import (
	"fmt"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jgoulah/dormpower/internal/config"
	"github.com/jgoulah/dormpower/pkg/models"
	"github.com/jgoulah/dormpower/pkg/trend"
)

const connectTimeout = 10 * time.Second

// Snapshot is the state published for one dorm after a poll
type Snapshot struct {
	Dorm       models.Dorm
	Reading    models.Reading
	Prediction trend.Prediction
	Level      trend.Level
}

// Publisher sends balance snapshots to Home Assistant and/or an MQTT broker
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	ha          *homeAssistant
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig) (*Publisher, error) {
	p := &Publisher{}

	if haCfg.Enabled {
		ha, err := newHomeAssistant(haCfg)
		if err != nil {
			return nil, err
		}
		p.ha = ha
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		p.topicPrefix = mqttCfg.TopicPrefix
		if p.topicPrefix == "" {
			p.topicPrefix = "dormpower"
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		// Unique per process so a CLI publish doesn't kick the watch daemon off the broker
		opts.SetClientID("dormpower-" + uuid.NewString()[:8])
		// Reconnect after later drops, but fail fast on the first connect
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(false)
		opts.SetConnectTimeout(connectTimeout)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		p.client = mqtt.NewClient(opts)
		token := p.client.Connect()
		if !token.WaitTimeout(connectTimeout + 5*time.Second) {
			return nil, fmt.Errorf("connecting to MQTT broker %s: timed out", mqttCfg.Broker)
		}
		if err := token.Error(); err != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
		}
	}

	if p.ha == nil && p.client == nil {
		return nil, fmt.Errorf("no publisher enabled: set home_assistant.enabled or mqtt.enabled in config")
	}

	return p, nil
}

// Publish sends a snapshot to every enabled target
func (p *Publisher) Publish(s Snapshot) error {
	if p.ha != nil {
		if err := p.ha.publish(s); err != nil {
			return fmt.Errorf("home assistant: %w", err)
		}
	}

	if p.client != nil {
		for _, m := range mqttMessages(p.topicPrefix, s) {
			token := p.client.Publish(m.topic, 1, true, m.payload)
			if !token.WaitTimeout(10 * time.Second) {
				return fmt.Errorf("mqtt: publishing %s timed out", m.topic)
			}
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt: publishing %s: %w", m.topic, err)
			}
		}
	}

	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

type mqttMessage struct {
	topic   string
	payload string
}

// mqttMessages lays out retained topics under <prefix>/<dorm id>/
func mqttMessages(prefix string, s Snapshot) []mqttMessage {
	base := fmt.Sprintf("%s/%s", prefix, s.Dorm.ID)

	days := s.Prediction.Kind.String()
	if s.Prediction.Kind == trend.Predict {
		days = strconv.FormatFloat(s.Prediction.Days, 'f', 1, 64)
	}

	return []mqttMessage{
		{topic: base + "/balance", payload: strconv.FormatFloat(s.Reading.BalanceKWh, 'f', 2, 64)},
		{topic: base + "/days_remaining", payload: days},
		{topic: base + "/status", payload: s.Level.String()},
	}
}
