package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-doc-approvals/internal/service"
)

// NotificationPublisher publishes document approval events to NATS for
// consumption by the notifications service.
//
// Subject convention: <prefix>.<event_type>
// Event types: approval_required, document_approved, document_rejected,
//              status_changed, comment_added
//
// All publish operations are non-fatal. Errors are logged and never returned
// to the caller, so notification failures never interrupt approval operations.
type NotificationPublisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Category     string                 `json:"category"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// ConnectNATS dials the NATS server with reconnects enabled.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// NewNotificationPublisher creates a publisher. A nil connection yields a
// publisher that drops every event.
func NewNotificationPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, prefix: prefix, log: log}
}

// Publish implements service.Notifier.
func (p *NotificationPublisher) Publish(_ context.Context, ev service.Event) {
	if p.conn == nil || len(ev.Recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    ev.Type,
		ActorID:      ev.ActorID,
		Recipients:   ev.Recipients,
		ResourceType: "document",
		ResourceID:   ev.DocumentID,
		IsActionable: ev.Type == "approval_required",
		Category:     "document_approval",
		OccurredAt:   time.Now().UTC(),
		Payload:      ev.Payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", ev.Type).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, ev.Type)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", ev.DocumentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", ev.DocumentID).
		Int("recipients", len(ev.Recipients)).
		Msg("notification: event published")
}
