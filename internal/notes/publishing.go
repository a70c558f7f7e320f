package notes

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

// PublishingStore decorates a Store and publishes a ChangeEvent after every
// successful write. A failed publish is logged and does not fail the write;
// the local replica still invalidates through its own write path.
type PublishingStore struct {
	Store
	publisher kafka.Publisher
	retry     resilience.RetryConfig
	onPublish func(err error)
	now       func() time.Time
	logger    *slog.Logger
}

// NewPublishingStore wraps store. onPublish, if set, observes the outcome of
// every publish attempt.
func NewPublishingStore(store Store, publisher kafka.Publisher, onPublish func(err error)) *PublishingStore {
	return &PublishingStore{
		Store:     store,
		publisher: publisher,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		onPublish: onPublish,
		now:       time.Now,
		logger:    slog.Default().With("component", "note-publisher"),
	}
}

func (s *PublishingStore) Upsert(ctx context.Context, n Note) (Note, error) {
	stored, err := s.Store.Upsert(ctx, n)
	if err != nil {
		return Note{}, err
	}
	s.publish(ctx, ChangeUpserted, stored.ID)
	return stored, nil
}

func (s *PublishingStore) Delete(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, ChangeDeleted, id)
	return nil
}

func (s *PublishingStore) publish(ctx context.Context, typ ChangeType, id string) {
	event := kafka.Event{
		Key: id,
		Value: ChangeEvent{
			Type:      typ,
			NoteID:    id,
			ChangedAt: s.now().UTC(),
		},
	}
	err := resilience.Retry(ctx, "publish-note-change", s.retry, func(ctx context.Context) error {
		return s.publisher.Publish(ctx, event)
	})
	if err != nil {
		s.logger.Error("failed to publish note change",
			"note_id", id,
			"type", typ,
			"error", err,
		)
	}
	if s.onPublish != nil {
		s.onPublish(err)
	}
}
