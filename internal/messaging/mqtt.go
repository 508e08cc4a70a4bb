package messaging

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const mqttTimeout = 10 * time.Second

// MQTTPublisher publishes to an MQTT broker. Destinations are translated to
// topics under the configured namespace prefix; delivery uses QoS 1 so the
// broker has acknowledged the message before the publish returns.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	mu     sync.Mutex
}

// NewMQTTPublisher creates a new MQTT publisher
func NewMQTTPublisher(cfg config.BrokerConfig) (*MQTTPublisher, error) {
	if cfg.MQTTURL == "" {
		return nil, errors.New("mqtt broker url is required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTURL).
		SetClientID("mycousinvinyl-events-" + uuid.NewString()[:8]).
		SetConnectTimeout(mqttTimeout).
		SetAutoReconnect(true)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}

	return &MQTTPublisher{
		client: mqtt.NewClient(opts),
		prefix: cfg.MQTTTopicPrefix,
	}, nil
}

// Publish sends the message to the topic derived from destination. MQTT 3
// has no message headers, so only the JSON body goes on the wire.
func (p *MQTTPublisher) Publish(ctx context.Context, destination string, message interface{}, headers map[string]string) error {
	body, _, err := encodeMessage(message, headers)
	if err != nil {
		return err
	}

	if err := p.ensureConnected(); err != nil {
		return err
	}

	topic := TopicForDestination(destination, p.prefix)
	token := p.client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Wrapf(ErrBrokerUnavailable, "mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "mqtt publish to %s: %v", topic, err)
	}

	return nil
}

// ensureConnected establishes the connection if the client observes itself
// disconnected.
func (p *MQTTPublisher) ensureConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client.IsConnectionOpen() {
		return nil
	}

	token := p.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return errors.Wrap(ErrBrokerUnavailable, "mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "mqtt connect: %v", err)
	}

	log.Info().Msg("Connected to MQTT broker")
	return nil
}

// Close disconnects the MQTT client.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}

// TopicForDestination translates a broker-neutral destination into an MQTT
// topic. Leading slashes are stripped; a destination already inside the
// prefix namespace is used as-is; a leading topic/ segment is dropped before
// the prefix is prepended. With an empty prefix the topic stays unprefixed.
func TopicForDestination(destination, prefix string) string {
	d := strings.TrimLeft(destination, "/")
	if prefix != "" && strings.HasPrefix(d, prefix+"/") {
		return d
	}
	d = strings.TrimPrefix(d, "topic/")
	if prefix == "" {
		return d
	}
	return prefix + "/" + d
}

// DestinationForTopic is the inverse translation: a topic under the prefix
// namespace has the prefix stripped and is re-wrapped as /topic/<suffix>;
// any other topic is wrapped the same way.
func DestinationForTopic(topic, prefix string) string {
	if prefix != "" && strings.HasPrefix(topic, prefix+"/") {
		return "/topic/" + strings.TrimPrefix(topic, prefix+"/")
	}
	return "/topic/" + topic
}
