package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

// MessageHandler processes one message. A returned error is retried with
// backoff before the message is given up on.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the part of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts messages since start.
type ConsumerStats struct {
	Processed int64
	Failed    int64
}

// Consumer dispatches messages from one topic to a MessageHandler and
// commits each one once it has been handled or given up on. Offsets always
// advance, so a poison message cannot stall the partition.
type Consumer struct {
	reader    messageReader
	handler   MessageHandler
	retry     resilience.RetryConfig
	backoff   time.Duration
	processed atomic.Int64
	failed    atomic.Int64
	logger    *slog.Logger
}

// NewConsumer creates a Consumer for topic. groupID overrides
// cfg.ConsumerGroup when set; cache invalidation uses a per-replica group so
// every replica sees every change.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, handler MessageHandler) *Consumer {
	if groupID == "" {
		groupID = cfg.ConsumerGroup
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r messageReader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Retryable:    func(err error) bool { return !isPermanent(err) },
		},
		backoff: time.Second,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	c.logger.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"value_size", len(msg.Value),
	)
	err := resilience.Retry(ctx, "kafka-handle", c.retry, func(ctx context.Context) error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err == nil {
		c.processed.Add(1)
		return
	}
	c.failed.Add(1)
	c.logger.Error("giving up on message",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
		"error", err,
	)
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{Processed: c.processed.Load(), Failed: c.failed.Load()}
}

// Permanent marks a handler error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ error }

func (p permanentError) Unwrap() error { return p.error }

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
