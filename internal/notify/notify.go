// Package notify publishes posture events over MQTT so external displays and
// automations can react to classification results without polling the daemon.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"posture/internal/config"
	"posture/internal/logging"
)

// Publisher emits posture events. The nop implementation is used when MQTT
// is disabled.
type Publisher interface {
	PublishPrediction(event PredictionEvent) error
	PublishTraining(event TrainingEvent) error
	Close()
}

// PredictionEvent is emitted for every classified capture.
type PredictionEvent struct {
	User      string    `json:"user_id"`
	Capture   string    `json:"capture"`
	Label     string    `json:"label"`
	RuleLabel string    `json:"rule_label"`
	Score     float64   `json:"score"`
	At        time.Time `json:"at"`
}

// TrainingEvent is emitted when a calibration run completes.
type TrainingEvent struct {
	User    string    `json:"user_id"`
	RunID   string    `json:"run_id"`
	Samples int       `json:"samples"`
	Skipped int       `json:"skipped"`
	At      time.Time `json:"at"`
}

// New returns an MQTT publisher when enabled in the config, otherwise a nop.
func New(cfg *config.Config, logger *slog.Logger) (Publisher, error) {
	if !cfg.MQTT.Enabled {
		return nopPublisher{}, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTT.Broker, token.Error())
	}

	return &mqttPublisher{
		client: client,
		topic:  cfg.MQTT.Topic,
		log:    logger.With(logging.String(logging.FieldComponent, "notify")),
	}, nil
}

type mqttPublisher struct {
	client mqtt.Client
	topic  string
	log    *slog.Logger
}

func (p *mqttPublisher) PublishPrediction(event PredictionEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return p.publish(p.topic+"/prediction", event)
}

func (p *mqttPublisher) PublishTraining(event TrainingEvent) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return p.publish(p.topic+"/training", event)
}

func (p *mqttPublisher) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	token := p.client.Publish(topic, 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Warn("publish failed", logging.String("topic", topic), logging.Error(err))
		return err
	}
	return nil
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}

type nopPublisher struct{}

func (nopPublisher) PublishPrediction(PredictionEvent) error { return nil }
func (nopPublisher) PublishTraining(TrainingEvent) error     { return nil }
func (nopPublisher) Close()                                  {}

// Nop returns a publisher that drops everything.
func Nop() Publisher { return nopPublisher{} }
