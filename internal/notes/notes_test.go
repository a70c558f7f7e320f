package notes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/kafka"
)

func TestDocument(t *testing.T) {
	n := Note{ID: "n1", Title: "Pasta", Content: "boil water"}
	doc := n.Document()
	assert.Equal(t, "n1", doc.ID)
	assert.Equal(t, "Pasta boil water", doc.Text)

	docs := Documents([]Note{n, {ID: "n2", Title: "x"}})
	require.Len(t, docs, 2)
	assert.Equal(t, "n2", docs[1].ID)
}

func TestCollectTags(t *testing.T) {
	tags := CollectTags([]Note{
		{ID: "1", Tags: []Tag{{ID: "t2", Name: "work"}, {ID: "t1", Name: "ideas"}}},
		{ID: "2", Tags: []Tag{{ID: "t2", Name: "renamed"}}},
		{ID: "3"},
	})
	assert.Equal(t, []Tag{{ID: "t1", Name: "ideas"}, {ID: "t2", Name: "work"}}, tags)
}

func TestNewNote(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	n := NewNote("", UpsertRequest{Title: "  Hello  ", Content: "world"}, now)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "Hello", n.Title)
	assert.NotNil(t, n.Tags)
	assert.Equal(t, time.UTC, n.CreatedAt.Location())

	n = NewNote("fixed", UpsertRequest{Title: "t"}, now)
	assert.Equal(t, "fixed", n.ID)
}

func TestUpsertRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     UpsertRequest
		wantErr string
	}{
		{"title only", UpsertRequest{Title: "t"}, ""},
		{"content only", UpsertRequest{Content: "c"}, ""},
		{"empty", UpsertRequest{}, "title"},
		{"long title", UpsertRequest{Title: strings.Repeat("x", 1025)}, "title"},
		{"tag without name", UpsertRequest{Title: "t", Tags: []Tag{{ID: "t1"}}}, "tags[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.wantErr)
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(Note{ID: "b", Title: "second", CreatedAt: created})

	_, err := s.Upsert(ctx, Note{ID: "a", Title: "first", Tags: []Tag{{ID: "t", Name: "tag"}}})
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	// Callers cannot mutate stored tags through returned notes.
	list[0].Tags[0].Name = "mutated"
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "tag", got.Tags[0].Name)

	updated, err := s.Upsert(ctx, Note{ID: "b", Title: "changed", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, created, updated.CreatedAt)

	require.NoError(t, s.Delete(ctx, "a"))
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, apperrors.ErrNoteNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a"), apperrors.ErrNoteNotFound)

	_, err = s.Upsert(ctx, Note{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func TestPublishingStoreEmitsChanges(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	var outcomes []error
	s := NewPublishingStore(NewMemoryStore(), pub, func(err error) { outcomes = append(outcomes, err) })

	_, err := s.Upsert(ctx, Note{ID: "n1", Title: "t"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "n1"))

	require.Len(t, pub.events, 2)
	assert.Equal(t, "n1", pub.events[0].Key)
	assert.Equal(t, ChangeUpserted, pub.events[0].Value.(ChangeEvent).Type)
	assert.Equal(t, ChangeDeleted, pub.events[1].Value.(ChangeEvent).Type)
	assert.Equal(t, []error{nil, nil}, outcomes)
}

func TestPublishingStoreSkipsFailedWrites(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewPublishingStore(NewMemoryStore(), pub, nil)
	assert.ErrorIs(t, s.Delete(context.Background(), "missing"), apperrors.ErrNoteNotFound)
	assert.Empty(t, pub.events)
}

func TestPublishingStoreToleratesBrokerFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	var outcome error
	s := NewPublishingStore(NewMemoryStore(), pub, func(err error) { outcome = err })
	s.retry.InitialDelay = time.Millisecond

	_, err := s.Upsert(context.Background(), Note{ID: "n1", Title: "t"})
	require.NoError(t, err)
	assert.Error(t, outcome)

	_, err = s.Get(context.Background(), "n1")
	assert.NoError(t, err)
}
