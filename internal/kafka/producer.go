// Package kafka publishes engine events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"paper-trader/internal/models"
	"paper-trader/pkg/utils"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing events to Kafka.
type Producer struct {
	writer  MessageWriter
	topic   string
	logger  zerolog.Logger
	retry   utils.RetryConfig
	timeout time.Duration
}

// NewProducer creates a new Kafka producer.
func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewProducerWithWriter(writer, topic, logger)
}

// NewProducerWithWriter wraps an existing writer.
func NewProducerWithWriter(writer MessageWriter, topic string, logger zerolog.Logger) *Producer {
	return &Producer{
		writer:  writer,
		topic:   topic,
		logger:  logger,
		retry:   utils.DefaultRetryConfig(),
		timeout: 5 * time.Second,
	}
}

// Publish writes ev keyed by account ID, so one account's events stay on
// one partition in order.
func (p *Producer) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(ev.AccountID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}

	err = utils.Retry(ctx, p.retry, func() error {
		err := p.writer.WriteMessages(ctx, msg)
		var tooLarge kafka.MessageTooLargeError
		if errors.As(err, &tooLarge) {
			return utils.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// OnEvent implements the stream hub consumer interface.
func (p *Producer) OnEvent(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.Publish(ctx, ev); err != nil {
		p.logger.Error().Err(err).Str("topic", p.topic).Uint64("seq", ev.Seq).Msg("Failed to publish event")
	}
}

// Accounts implements the consumer filter; the producer takes every account.
func (p *Producer) Accounts() []string { return nil }

// Close closes the Kafka producer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
