package bridge

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// DialNATS connects to a NATS server. The connection reconnects on its
// own; disconnects and reconnects are logged.
func DialNATS(url, name string, logger *slog.Logger) (*NATSPublisher, error) {
	p := &NATSPublisher{logger: logger}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil && p.logger != nil {
				p.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if p.logger != nil {
				p.logger.Info("NATS reconnected", "url", c.ConnectedUrl())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	p.nc = nc
	return p, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *nats.Conn, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{nc: nc, logger: logger}
}

// Publish sends data on subject.
func (p *NATSPublisher) Publish(subject string, data []byte) error {
	return p.nc.Publish(subject, data)
}

// Subscribe registers handler for subject. Replies are sent when the
// incoming message has a reply subject.
func (p *NATSPublisher) Subscribe(subject string, handler func(data []byte) []byte) (Subscription, error) {
	sub, err := p.nc.Subscribe(subject, func(m *nats.Msg) {
		reply := handler(m.Data)
		if m.Reply == "" || reply == nil {
			return
		}
		if err := m.Respond(reply); err != nil && p.logger != nil {
			p.logger.Warn("NATS reply failed", "subject", m.Reply, "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	if err != nil {
		p.nc.Close()
	}
	return err
}
