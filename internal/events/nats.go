// Package events publishes workflow transition events to NATS for external
// observers. Publishing is best-effort: failures are surfaced to the caller
// for logging and never interrupt a run.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/featmine/internal/config"
	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// NATSPublisher publishes transitions to <prefix>.<run_id>.
type NATSPublisher struct {
	conn    *nats.Conn
	prefix  string
	ownConn bool
}

// Connect dials the configured NATS server.
func Connect(cfg config.EventsConfig) (*NATSPublisher, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("featmine"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: cfg.SubjectPrefix, ownConn: true}, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// PublishTransition sends one transition event as JSON.
func (p *NATSPublisher) PublishTransition(_ context.Context, ev pipeline.TransitionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding transition event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", p.prefix, ev.RunID)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection when this publisher owns it.
func (p *NATSPublisher) Close() error {
	if !p.ownConn {
		return nil
	}
	return p.conn.Drain()
}
