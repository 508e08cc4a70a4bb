package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/pkg/errors"
)

// ServiceBusPublisher publishes to Azure Service Bus for deployments that
// run on Azure instead of a self-hosted broker. Destinations map to entity
// names by dropping the /topic/ or /queue/ segment and replacing slashes
// with dots.
type ServiceBusPublisher struct {
	client *azservicebus.Client

	mu      sync.Mutex
	senders map[string]*azservicebus.Sender
}

// NewServiceBusPublisher creates a new Service Bus publisher
func NewServiceBusPublisher(cfg config.BrokerConfig) (*ServiceBusPublisher, error) {
	if cfg.ServiceBusConnStr == "" {
		return nil, errors.New("service bus connection string is required")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.ServiceBusConnStr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create service bus client")
	}

	return &ServiceBusPublisher{
		client:  client,
		senders: make(map[string]*azservicebus.Sender),
	}, nil
}

// Publish sends the message to the entity derived from destination.
func (p *ServiceBusPublisher) Publish(ctx context.Context, destination string, message interface{}, headers map[string]string) error {
	body, merged, err := encodeMessage(message, headers)
	if err != nil {
		return err
	}

	sender, err := p.senderFor(entityForDestination(destination))
	if err != nil {
		return err
	}

	contentType := merged["content-type"]
	props := make(map[string]interface{}, len(merged))
	for k, v := range merged {
		if k == "content-type" {
			continue
		}
		props[k] = v
	}

	msg := &azservicebus.Message{
		Body:                  body,
		ContentType:           &contentType,
		ApplicationProperties: props,
	}

	if err := sender.SendMessage(ctx, msg, nil); err != nil {
		return errors.Wrapf(ErrBrokerUnavailable, "service bus send to %s: %v", destination, err)
	}

	return nil
}

// senderFor returns a cached sender for the entity, creating one on first
// use.
func (p *ServiceBusPublisher) senderFor(entity string) (*azservicebus.Sender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if sender, ok := p.senders[entity]; ok {
		return sender, nil
	}

	sender, err := p.client.NewSender(entity, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrBrokerUnavailable, "failed to create sender for %s: %v", entity, err)
	}
	p.senders[entity] = sender
	return sender, nil
}

// Close closes all senders and the client.
func (p *ServiceBusPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := context.Background()
	for _, sender := range p.senders {
		_ = sender.Close(ctx)
	}
	p.senders = make(map[string]*azservicebus.Sender)
	return p.client.Close(ctx)
}

// entityForDestination maps a broker-neutral destination to a Service Bus
// entity name.
func entityForDestination(destination string) string {
	d := strings.TrimLeft(destination, "/")
	d = strings.TrimPrefix(d, "topic/")
	d = strings.TrimPrefix(d, "queue/")
	return strings.ReplaceAll(d, "/", ".")
}
