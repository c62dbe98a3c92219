package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/telecare/telecare/internal/platform/db"
)

// Event is a domain fact published after the transaction that produced it
// has committed.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	TenantID    string          `json:"tenant_id,omitempty"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// New builds an event for the tenant bound to ctx. Payloads that cannot be
// marshalled are dropped from the event rather than failing the caller.
func New(ctx context.Context, eventType, aggregateID string, payload interface{}) Event {
	evt := Event{
		ID:          uuid.New(),
		Type:        eventType,
		TenantID:    db.TenantFromContext(ctx),
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			evt.Payload = raw
		}
	}
	return evt
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// LogPublisher writes events to the log. It is used when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event_id", evt.ID.String()).
		Str("event_type", evt.Type).
		Str("tenant_id", evt.TenantID).
		Str("aggregate_id", evt.AggregateID).
		RawJSON("payload", nonEmpty(evt.Payload)).
		Msg("domain event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

func nonEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
