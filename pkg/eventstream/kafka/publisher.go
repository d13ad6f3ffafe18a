// Package kafka publishes record events to a Kafka topic. One message per
// persisted record, keyed by validation id so per-sample ordering survives
// partitioning.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	segmentio "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sightlinelabs/vizbench/pkg/eventstream"
)

// Config holds Kafka publisher settings.
type Config struct {
	// Brokers is a comma-separated broker list (host:port,host:port).
	Brokers string

	// Topic receives the record events.
	Topic string
}

// Publisher writes record events to Kafka.
type Publisher struct {
	writer *segmentio.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &segmentio.Writer{
		Addr:     segmentio.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &segmentio.Hash{},
	}

	logger.Info("created kafka publisher",
		zap.String("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
	)

	return &Publisher{writer: writer, logger: logger}, nil
}

// PublishRecord writes one event, keyed by validation id.
func (p *Publisher) PublishRecord(ctx context.Context, event *eventstream.RecordPersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilRecordEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling record event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(event.Record.ValidationID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing record event: %w", err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
