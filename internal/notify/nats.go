package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/obsidianstack/sensorsd/internal/config"
)

// NATS publishes events as JSON to one subject.
type NATS struct {
	subject string
	publish func(subject string, data []byte) error
	close   func()
}

// NewNATS connects to the configured server.
func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("sensorsd"))
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect %s: %w", cfg.URL, err)
	}
	return &NATS{
		subject: cfg.Subject,
		publish: conn.Publish,
		close: func() {
			_ = conn.Drain()
			conn.Close()
		},
	}, nil
}

// Name implements Notifier.
func (n *NATS) Name() string { return "nats" }

// Notify implements Notifier.
func (n *NATS) Notify(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return n.publish(n.subject, data)
}

// Close implements Notifier.
func (n *NATS) Close() error {
	if n.close != nil {
		n.close()
	}
	return nil
}
