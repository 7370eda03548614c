package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/luki/sensorlink/internal/telemetry"
)

// ErrPublishTimeout means the broker did not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// publisher is the part of mqtt.Client the mirror uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes each sample as JSON to one topic with QoS 0.
type MQTT struct {
	client publisher
	topic  string
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

// DialMQTT connects to the broker, retrying with exponential backoff until
// the attempts run out or ctx is done.
func DialMQTT(ctx context.Context, cfg MQTTConfig, logger *zap.Logger) (*MQTT, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("mqtt")
	if cfg.ClientID == "" {
		cfg.ClientID = "sensorlink-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	const maxRetries = 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("failed to connect to MQTT broker", zap.String("broker", cfg.Broker), zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Info("connected to MQTT broker", zap.String("broker", cfg.Broker), zap.String("client_id", cfg.ClientID))
	return newMQTT(client, cfg.Topic, log), nil
}

func newMQTT(client publisher, topic string, log *zap.Logger) *MQTT {
	return &MQTT{client: client, topic: topic, cb: newBreaker("mqtt", log), log: log}
}

// Observe publishes s and waits for the broker until ctx is done.
func (m *MQTT) Observe(ctx context.Context, s telemetry.Sample) {
	_ = run(m.cb, m.log, func() error { return m.publish(ctx, s) })
}

func (m *MQTT) publish(ctx context.Context, s telemetry.Sample) error {
	body, err := json.Marshal(NewRecord(s))
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 0, false, body)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ErrPublishTimeout
	}
}

// Close disconnects, giving in-flight messages 250ms.
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
