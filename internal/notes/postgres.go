package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/postgres"
)

// Schema creates the notes table. Tags are stored inline as JSONB because
// they are only ever read together with their note.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	tags       JSONB NOT NULL DEFAULT '[]',
	is_pinned  BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS notes_updated_at_idx ON notes (updated_at);
`

// PostgresStore persists notes in PostgreSQL through lib/pq.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// schemaLockID serializes EnsureSchema across replicas starting together.
const schemaLockID = 0x6e6f746573 // "notes"

// EnsureSchema applies Schema. It is idempotent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	err := s.db.InTx(ctx, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("applying notes schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const selectColumns = `SELECT id, title, content, tags, is_pinned, created_at, updated_at FROM notes`

func (s *PostgresStore) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.DB.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	if out == nil {
		out = []Note{}
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Note, error) {
	n, err := scanNote(s.db.DB.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: %s", apperrors.ErrNoteNotFound, id)
	}
	return n, err
}

func (s *PostgresStore) Upsert(ctx context.Context, n Note) (Note, error) {
	if n.ID == "" {
		return Note{}, fmt.Errorf("%w: note id is required", apperrors.ErrInvalidInput)
	}
	tags := n.Tags
	if tags == nil {
		tags = []Tag{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return Note{}, fmt.Errorf("encoding tags: %w", err)
	}
	stored, err := scanNote(s.db.DB.QueryRowContext(ctx, `
		INSERT INTO notes (id, title, content, tags, is_pinned, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			tags = EXCLUDED.tags,
			is_pinned = EXCLUDED.is_pinned,
			updated_at = EXCLUDED.updated_at
		RETURNING id, title, content, tags, is_pinned, created_at, updated_at`,
		n.ID, n.Title, n.Content, string(tagJSON), n.IsPinned, n.CreatedAt, n.UpdatedAt))
	if err != nil {
		return Note{}, fmt.Errorf("upserting note %s: %w", n.ID, err)
	}
	return stored, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrNoteNotFound, id)
	}
	return nil
}

func scanNote(row rowScanner) (Note, error) {
	var (
		n       Note
		tagJSON []byte
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &tagJSON, &n.IsPinned, &n.CreatedAt, &n.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("scanning note: %w", err)
	}
	if err := json.Unmarshal(tagJSON, &n.Tags); err != nil {
		return Note{}, fmt.Errorf("decoding tags of note %s: %w", n.ID, err)
	}
	if n.Tags == nil {
		n.Tags = []Tag{}
	}
	n.CreatedAt = n.CreatedAt.UTC()
	n.UpdatedAt = n.UpdatedAt.UTC()
	return n, nil
}
