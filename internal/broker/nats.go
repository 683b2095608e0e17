package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATS publishes envelopes on a core NATS subject.
type NATS struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
}

// NewNATS connects to url; name identifies this instance to the NATS server.
func NewNATS(url, subject, name string, logger *zerolog.Logger) (*NATS, error) {
	log := logger.With().Str("component", "broker").Str("broker", "nats").Logger()

	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	return &NATS{conn: conn, subject: subject, log: log}, nil
}

// Publish sends env on the subject.
func (n *NATS) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe listens on the subject until ctx is done.
func (n *NATS) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	msgs := make(chan *nats.Msg, subscriberBuffer)
	sub, err := n.conn.ChanSubscribe(n.subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := n.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	out := make(chan Envelope, subscriberBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()

		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				env, err := Decode(msg.Data)
				if err != nil {
					n.log.Warn().Err(err).Msg("dropping malformed envelope")
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
