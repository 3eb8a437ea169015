// Package kafka provides the corpus topic consumer and the index-complete
// producer, both backed by segmentio/kafka-go.
package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/mathsearch/pkg/errors"
)

// MessageHandler processes one message value. A recoverable error skips the
// message; a fatal one (apperrors.ErrFatal) stops the consumer without
// committing it.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Reader is the part of *kafka.Reader the consumer drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds messages of one topic to a MessageHandler in order.
type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	handler MessageHandler
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    int(config.DefaultMaxCorpusFileSize) + 1024,
		StartOffset: kafka.FirstOffset,
	})
	return NewConsumerFromReader(r, topic, handler)
}

// NewConsumerFromReader is NewConsumer over an existing reader.
func NewConsumerFromReader(r Reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start consumes until ctx is cancelled or the handler reports a fatal
// error, which is returned. The reader is closed either way.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			if !apperrors.IsRecoverable(err) {
				return fmt.Errorf("partition %d offset %d: %w", msg.Partition, msg.Offset, err)
			}
			c.logger.Warn("message skipped",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}
