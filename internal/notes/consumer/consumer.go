// Package consumer reads note change events from Kafka and invalidates the
// similarity caches of this replica.
package consumer

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/kafka"
)

// Invalidator drops cached similarity results. Implementations must be safe
// to call from the consumer goroutine.
type Invalidator interface {
	Invalidate(ctx context.Context, reason string) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context, reason string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// ChangeConsumer wraps a Kafka consumer subscribed to note change events.
type ChangeConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *ChangeConsumer {
	return &ChangeConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "note-change-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (cc *ChangeConsumer) Start(ctx context.Context) error {
	cc.logger.Info("note change consumer starting")
	return cc.consumer.Start(ctx)
}

// HandleChange returns a MessageHandler that invalidates every invalidator
// for each well-formed change event. Malformed events fail permanently and
// are never retried; an invalidation failure is returned so the event is
// retried.
func HandleChange(onEvent func(err error), invalidators ...Invalidator) kafka.MessageHandler {
	logger := slog.Default().With("component", "note-change-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[notes.ChangeEvent](value)
		if err != nil {
			logger.Error("failed to decode change event", "error", err, "key", string(key))
			if onEvent != nil {
				onEvent(err)
			}
			return kafka.Permanent(err)
		}
		switch event.Type {
		case notes.ChangeUpserted, notes.ChangeDeleted:
		default:
			logger.Warn("ignoring unknown change type", "type", event.Type, "note_id", event.NoteID)
			return nil
		}
		reason := "note " + string(event.Type)
		for _, inv := range invalidators {
			if err := inv.Invalidate(ctx, reason); err != nil {
				if onEvent != nil {
					onEvent(err)
				}
				return err
			}
		}
		logger.Debug("caches invalidated", "note_id", event.NoteID, "type", event.Type)
		if onEvent != nil {
			onEvent(nil)
		}
		return nil
	}
}
