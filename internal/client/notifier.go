package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Notifier publishes workflow events to NATS for the notification service.
//
// Subject convention: school.workflow.<event_type>
// Event types: fee_transitioned, subscription_transitioned, proof_submitted,
//              proof_reviewed
//
// All publish operations are non-fatal: errors are logged but never returned,
// so notification trouble cannot interrupt a workflow operation.
type Notifier struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// WorkflowEvent is the JSON schema published to NATS.
type WorkflowEvent struct {
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	SchoolID   string         `json:"school_id"`
	ActorID    string         `json:"actor_id"`
	FromStatus string         `json:"from_status,omitempty"`
	ToStatus   string         `json:"to_status,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotifier connects to NATS. An empty URL returns a disabled notifier that
// drops every event.
func NewNotifier(url string, log zerolog.Logger) (*Notifier, error) {
	if url == "" {
		return &Notifier{log: log}, nil
	}

	conn, err := nats.Connect(url, nats.Name("be-school-fees"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Notifier{conn: conn, log: log}, nil
}

// Close drains the connection.
func (n *Notifier) Close() {
	if n.conn != nil {
		n.conn.Close()
	}
}

// Publish sends one workflow event. Subject: school.workflow.<event_type>.
func (n *Notifier) Publish(_ context.Context, event WorkflowEvent) {
	if n.conn == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("school.workflow.%s", event.EventType)
	if err := n.conn.Publish(subject, data); err != nil {
		n.log.Warn().Err(err).
			Str("subject", subject).
			Str("entity_id", event.EntityID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	n.log.Debug().
		Str("subject", subject).
		Str("entity_id", event.EntityID).
		Msg("notification: event published")
}
