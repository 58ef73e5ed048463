// Package kafka publishes journal events to a Kafka topic for downstream
// consumers such as indexers and analytics pipelines.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// Config holds publisher parameters.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher implements domain.EventSink by writing JSON events to a Kafka
// topic. Messages are keyed by market id so per-market order survives
// partitioning.
type Publisher struct {
	writer *kafka.Writer
}

// New creates a Publisher. The topic is created on first write when the
// broker allows it.
func New(cfg Config) *Publisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
	return &Publisher{writer: writer}
}

// Deliver writes ev to the topic as JSON.
func (p *Publisher) Deliver(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka: marshal event %s: %w", ev.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(ev.MarketID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write event %s: %w", ev.ID, err)
	}
	return nil
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "kafka" }

// Close flushes buffered messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ domain.EventSink = (*Publisher)(nil)
