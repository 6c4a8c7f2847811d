// Package events announces plan lifecycle changes on a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects.
const (
	SubjectPlanIssued   = "ezra.plan.issued"
	SubjectPlanVerified = "ezra.plan.verified"
)

// PlanEvent is the message body for both subjects.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PlanEvent struct {
	PlanID          string    `json:"plan_id,omitempty"`
	DeviceID        string    `json:"device_id,omitempty"`
	RiskLevel       string    `json:"risk_level,omitempty"`
	ConsentRequired bool      `json:"consent_required"`
	Provider        string    `json:"provider,omitempty"`
	ContentHash     string    `json:"content_hash,omitempty"`
	Valid           *bool     `json:"valid,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher delivers plan events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, subject string, ev PlanEvent) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, PlanEvent) error { return nil }
func (Nop) Close() error                                    { return nil }

// NATSPublisher publishes JSON events on core NATS subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// ConnectNATS dials url and returns a publisher on that connection.
func ConnectNATS(url string, timeout time.Duration) (*NATSPublisher, error) {
	logger := slog.Default().With("component", "events")
	conn, err := nats.Connect(url,
		nats.Name("ezra-companion"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn, logger: logger}, nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, logger: slog.Default().With("component", "events")}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, ev PlanEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.DebugContext(ctx, "event published", "subject", subject, "plan_id", ev.PlanID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
