package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notes (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	tags       TEXT NOT NULL DEFAULT '[]',
	is_pinned  INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS notes_updated_at_idx ON notes (updated_at);
`

// SQLiteStore persists notes in a single SQLite file. It suits one replica
// running on a desktop or a small VM.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// applies the schema. ":memory:" gives a private in-memory database.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initializing sqlite store %s: %w", path, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()
	out := []Note{}
	for rows.Next() {
		n, err := scanSQLiteNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notes: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Note, error) {
	n, err := scanSQLiteNote(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("%w: %s", apperrors.ErrNoteNotFound, id)
	}
	return n, err
}

func (s *SQLiteStore) Upsert(ctx context.Context, n Note) (Note, error) {
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
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, tags, is_pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			is_pinned = excluded.is_pinned,
			updated_at = excluded.updated_at`,
		n.ID, n.Title, n.Content, string(tagJSON), n.IsPinned,
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt))
	if err != nil {
		return Note{}, fmt.Errorf("upserting note %s: %w", n.ID, err)
	}
	return s.Get(ctx, n.ID)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
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

// Timestamps are stored as fixed-width RFC 3339 text so they sort in
// column order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func scanSQLiteNote(row rowScanner) (Note, error) {
	var (
		n                Note
		tagJSON          string
		created, updated string
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &tagJSON, &n.IsPinned, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, err
		}
		return Note{}, fmt.Errorf("scanning note: %w", err)
	}
	if err := json.Unmarshal([]byte(tagJSON), &n.Tags); err != nil {
		return Note{}, fmt.Errorf("decoding tags of note %s: %w", n.ID, err)
	}
	if n.Tags == nil {
		n.Tags = []Tag{}
	}
	var err error
	if n.CreatedAt, err = time.Parse(sqliteTimeLayout, created); err != nil {
		return Note{}, fmt.Errorf("decoding created_at of note %s: %w", n.ID, err)
	}
	if n.UpdatedAt, err = time.Parse(sqliteTimeLayout, updated); err != nil {
		return Note{}, fmt.Errorf("decoding updated_at of note %s: %w", n.ID, err)
	}
	return n, nil
}
