package messaging

import (
	"context"
	"sync"

	"github.com/cajo-dk/mycousinvinyl-ha-sub001/config"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ActiveMQPublisher publishes over a STOMP session. Destinations are used
// verbatim as broker destinations. The session is established lazily and
// re-established on demand after a send failure.
type ActiveMQPublisher struct {
	addr string

	mu   sync.Mutex
	conn *stomp.Conn
}

// NewActiveMQPublisher creates a new STOMP publisher
func NewActiveMQPublisher(cfg config.BrokerConfig) (*ActiveMQPublisher, error) {
	if cfg.ActiveMQURL == "" {
		return nil, errors.New("activemq broker url is required")
	}
	return &ActiveMQPublisher{addr: cfg.ActiveMQURL}, nil
}

// Publish sends the message to the given destination.
func (p *ActiveMQPublisher) Publish(ctx context.Context, destination string, message interface{}, headers map[string]string) error {
	body, merged, err := encodeMessage(message, headers)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connLocked()
	if err != nil {
		return err
	}

	opts := make([]func(*frame.Frame) error, 0, len(merged))
	for k, v := range merged {
		if k == frame.ContentType {
			continue
		}
		opts = append(opts, stomp.SendOpt.Header(k, v))
	}

	if err := conn.Send(destination, merged[frame.ContentType], body, opts...); err != nil {
		// Tear down the broken session so the next publish reconnects
		_ = conn.Disconnect()
		p.conn = nil
		return errors.Wrapf(ErrBrokerUnavailable, "stomp send to %s: %v", destination, err)
	}

	return nil
}

// connLocked returns the current session, dialing a new one if needed.
// Callers must hold p.mu.
func (p *ActiveMQPublisher) connLocked() (*stomp.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}

	conn, err := stomp.Dial("tcp", p.addr)
	if err != nil {
		return nil, errors.Wrapf(ErrBrokerUnavailable, "stomp dial %s: %v", p.addr, err)
	}

	log.Info().Str("broker", p.addr).Msg("Connected to ActiveMQ")
	p.conn = conn
	return conn, nil
}

// Close disconnects the STOMP session.
func (p *ActiveMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	conn := p.conn
	p.conn = nil
	return conn.Disconnect()
}
