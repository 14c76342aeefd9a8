// Package kafkasink publishes gate audit events to a Kafka topic as JSON.
//
// The sink is driven by the gate's audit dispatcher, so Emit runs on the
// dispatcher goroutine and never on the request path. Messages are keyed by
// user id so one user's events stay ordered within a partition.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/heartlink/onboardgate"
)

// DefaultWriteTimeout bounds one publish.
const DefaultWriteTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config configures a Sink.
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

// Sink implements onboardgate.AuditSink.
type Sink struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	logger  *zap.Logger
	failed  atomic.Uint64
}

// New builds a sink backed by a kafka.Writer for cfg.Brokers.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit sink requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit sink requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return NewWithWriter(w, cfg), nil
}

// NewWithWriter builds a sink over an existing writer. cfg.Brokers is ignored.
func NewWithWriter(w MessageWriter, cfg Config) *Sink {
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{writer: w, topic: cfg.Topic, timeout: timeout, logger: logger}
}

// Emit publishes event. Failures are logged and counted; they never reach
// the gate.
func (s *Sink) Emit(ctx context.Context, event onboardgate.AuditEvent) {
	if err := s.publish(ctx, event); err != nil {
		s.failed.Add(1)
		s.logger.Warn("audit publish failed",
			zap.String("event_type", event.EventType),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

func (s *Sink) publish(ctx context.Context, event onboardgate.AuditEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.Timestamp.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return s.writer.WriteMessages(ctx, msg)
}

// Failed reports how many events could not be published.
func (s *Sink) Failed() uint64 {
	return s.failed.Load()
}

// Close flushes and closes the writer. The dispatcher calls it on
// Gate.Close after draining its buffer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
