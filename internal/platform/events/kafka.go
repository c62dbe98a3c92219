package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("event broker unavailable")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	// FailureThreshold consecutive write failures open the breaker for
	// OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	return c
}

// KafkaPublisher writes events to a topic keyed by aggregate id, so events
// for one appointment or assignment stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	breaker *gobreaker.CircuitBreaker[struct{}]
	timeout time.Duration
	logger  zerolog.Logger
}

func NewKafkaPublisher(cfg KafkaConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher needs at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher needs a topic")
	}
	cfg = cfg.withDefaults()
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaPublisher(w, cfg, logger), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	cfg = cfg.withDefaults()
	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "kafka-events",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return &KafkaPublisher{writer: w, breaker: breaker, timeout: cfg.WriteTimeout, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "tenant_id", Value: []byte(evt.TenantID)},
		},
		Time: evt.OccurredAt,
	}

	_, err = p.breaker.Execute(func() (struct{}, error) {
		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return struct{}{}, p.writer.WriteMessages(wctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("write event %s: %w", evt.Type, err)
	}
	return nil
}

// State reports the breaker state, for health output.
func (p *KafkaPublisher) State() string {
	return p.breaker.State().String()
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
