// Package notes holds the note model, the store abstraction the similarity
// service reads its corpus from, and the change events that tell replicas to
// drop cached similarity results.
package notes

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/corpus"
)

// Tag labels a note. Tags with the same ID are the same tag.
type Tag struct {
	ID    string `json:"id" yaml:"id" toml:"id" validate:"required,max=64"`
	Name  string `json:"name" yaml:"name" toml:"name" validate:"required,max=128"`
	Color string `json:"color,omitempty" yaml:"color,omitempty" toml:"color,omitempty" validate:"omitempty,max=32"`
}

type Note struct {
	ID        string    `json:"id" yaml:"id" toml:"id"`
	Title     string    `json:"title" yaml:"title" toml:"title"`
	Content   string    `json:"content" yaml:"content" toml:"content"`
	Tags      []Tag     `json:"tags" yaml:"tags" toml:"tags"`
	IsPinned  bool      `json:"isPinned" yaml:"isPinned" toml:"isPinned"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt" toml:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt"`
}

// Document is the text the similarity engine scores: title and content
// separated by a space.
func (n Note) Document() corpus.Document {
	return corpus.Document{ID: n.ID, Text: n.Title + " " + n.Content}
}

// Documents converts notes to corpus documents, preserving order.
func Documents(notes []Note) []corpus.Document {
	docs := make([]corpus.Document, len(notes))
	for i, n := range notes {
		docs[i] = n.Document()
	}
	return docs
}

// CollectTags returns the distinct tags used by notes, ordered by name then
// ID. The first occurrence of an ID wins.
func CollectTags(notes []Note) []Tag {
	seen := make(map[string]struct{})
	var tags []Tag
	for _, n := range notes {
		for _, t := range n.Tags {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			tags = append(tags, t)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Name != tags[j].Name {
			return tags[i].Name < tags[j].Name
		}
		return tags[i].ID < tags[j].ID
	})
	return tags
}

// UpsertRequest is the body accepted when creating or replacing a note.
type UpsertRequest struct {
	Title    string `json:"title" validate:"required_without=Content,max=1024"`
	Content  string `json:"content" validate:"max=1048576"`
	Tags     []Tag  `json:"tags" validate:"max=64,dive"`
	IsPinned bool   `json:"isPinned"`
}

// NewNote builds a note from req. An empty id gets a fresh UUID.
func NewNote(id string, req UpsertRequest, now time.Time) Note {
	if id == "" {
		id = uuid.NewString()
	}
	tags := req.Tags
	if tags == nil {
		tags = []Tag{}
	}
	return Note{
		ID:        id,
		Title:     strings.TrimSpace(req.Title),
		Content:   req.Content,
		Tags:      tags,
		IsPinned:  req.IsPinned,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

// Store persists notes. List returns notes ordered by ID so the corpus built
// from it is stable across calls.
type Store interface {
	List(ctx context.Context) ([]Note, error)
	Get(ctx context.Context, id string) (Note, error)
	// Upsert inserts n or replaces the note with the same ID, keeping the
	// original CreatedAt.
	Upsert(ctx context.Context, n Note) (Note, error)
	Delete(ctx context.Context, id string) error
}

// ChangeType names what happened to a note.
type ChangeType string

const (
	ChangeUpserted ChangeType = "upserted"
	ChangeDeleted  ChangeType = "deleted"
)

// ChangeEvent is the Kafka payload published after a successful write.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	NoteID    string     `json:"noteId"`
	ChangedAt time.Time  `json:"changedAt"`
}
