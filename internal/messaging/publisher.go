package messaging

import (
	"context"
	"encoding/json"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"

	"github.com/pkg/errors"
)

// ErrBrokerUnavailable is returned when a connection cannot be established
// or a send fails. Callers do not retry internally; retry is the relay's
// responsibility.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher is the outbound port to the message broker. Message is
// serialized to a JSON body; a content-type: application/json header is
// merged with the caller-supplied headers. Destination is a broker-neutral
// logical path such as /topic/artist.created.
type Publisher interface {
	Publish(ctx context.Context, destination string, message interface{}, headers map[string]string) error
	Close() error
}

// NewPublisher builds the publisher selected by broker.kind.
func NewPublisher(cfg config.BrokerConfig) (Publisher, error) {
	switch cfg.Kind {
	case "", config.BrokerActiveMQ:
		return NewActiveMQPublisher(cfg)
	case config.BrokerMQTT:
		return NewMQTTPublisher(cfg)
	case config.BrokerServiceBus:
		return NewServiceBusPublisher(cfg)
	default:
		return nil, errors.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

// encodeMessage serializes the message body and merges the mandatory
// content-type header with the caller's headers.
func encodeMessage(message interface{}, headers map[string]string) ([]byte, map[string]string, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal message body")
	}

	merged := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		merged[k] = v
	}
	merged["content-type"] = "application/json"

	return body, merged, nil
}
