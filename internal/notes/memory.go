package notes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// MemoryStore keeps notes in process memory. It is the default store and
// the one tests use.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]Note
}

// NewMemoryStore returns a store seeded with notes. Later duplicates replace
// earlier ones.
func NewMemoryStore(seed ...Note) *MemoryStore {
	s := &MemoryStore{notes: make(map[string]Note, len(seed))}
	for _, n := range seed {
		s.notes[n.ID] = cloneNote(n)
	}
	return s
}

func (s *MemoryStore) List(_ context.Context) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		out = append(out, cloneNote(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notes[id]
	if !ok {
		return Note{}, fmt.Errorf("%w: %s", apperrors.ErrNoteNotFound, id)
	}
	return cloneNote(n), nil
}

func (s *MemoryStore) Upsert(_ context.Context, n Note) (Note, error) {
	if n.ID == "" {
		return Note{}, fmt.Errorf("%w: note id is required", apperrors.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.notes[n.ID]; ok {
		n.CreatedAt = existing.CreatedAt
	}
	s.notes[n.ID] = cloneNote(n)
	return cloneNote(n), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notes[id]; !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrNoteNotFound, id)
	}
	delete(s.notes, id)
	return nil
}

// cloneNote copies the tag slice so callers cannot mutate stored notes.
func cloneNote(n Note) Note {
	tags := make([]Tag, len(n.Tags))
	copy(tags, n.Tags)
	n.Tags = tags
	return n
}
