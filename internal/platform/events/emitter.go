package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Recorder counts publish outcomes.
type Recorder interface {
	EventPublished(eventType, result string)
}

// Emitter is what services hold. Emit never fails the caller: a publish error
// is logged and counted, since the state change it describes has already
// committed. A nil *Emitter discards events.
type Emitter struct {
	publisher Publisher
	recorder  Recorder
	logger    zerolog.Logger
	timeout   time.Duration
}

func NewEmitter(p Publisher, rec Recorder, logger zerolog.Logger) *Emitter {
	return &Emitter{publisher: p, recorder: rec, logger: logger, timeout: 5 * time.Second}
}

func (e *Emitter) Emit(ctx context.Context, eventType, aggregateID string, payload interface{}) {
	if e == nil || e.publisher == nil {
		return
	}
	evt := New(ctx, eventType, aggregateID, payload)

	// The request may be cancelled as soon as the response is written.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	result := "ok"
	if err := e.publisher.Publish(pctx, evt); err != nil {
		result = "error"
		e.logger.Error().Err(err).
			Str("event_type", evt.Type).
			Str("aggregate_id", evt.AggregateID).
			Msg("failed to publish event")
	}
	if e.recorder != nil {
		e.recorder.EventPublished(evt.Type, result)
	}
}

func (e *Emitter) Close() error {
	if e == nil || e.publisher == nil {
		return nil
	}
	return e.publisher.Close()
}
