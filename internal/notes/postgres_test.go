package notes

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/postgres"
)

// newTestPostgresStore connects to the database named by NC_TEST_POSTGRES_HOST
// and skips the test when it is unset.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	host := os.Getenv("NC_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("NC_TEST_POSTGRES_HOST not set")
	}
	port := 5432
	if v := os.Getenv("NC_TEST_POSTGRES_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		require.NoError(t, err)
		port = p
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, config.PostgresConfig{
		Host:         host,
		Port:         port,
		Database:     "constellation",
		User:         "constellation",
		Password:     "localdev",
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgresStore(db)
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE notes`)
	require.NoError(t, err)
	return s
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	n := Note{
		ID:        "n1",
		Title:     "Pasta",
		Content:   "boil water",
		Tags:      []Tag{{ID: "t1", Name: "food", Color: "#f00"}},
		CreatedAt: created,
		UpdatedAt: created,
	}
	_, err := s.Upsert(ctx, n)
	require.NoError(t, err)

	n.Title = "Better pasta"
	n.CreatedAt = created.Add(time.Hour)
	n.UpdatedAt = created.Add(time.Hour)
	stored, err := s.Upsert(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "Better pasta", stored.Title)
	assert.True(t, created.Equal(stored.CreatedAt))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, n.Tags, list[0].Tags)

	require.NoError(t, s.Delete(ctx, "n1"))
	_, err = s.Get(ctx, "n1")
	assert.ErrorIs(t, err, apperrors.ErrNoteNotFound)
}
