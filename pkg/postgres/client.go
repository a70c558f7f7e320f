// Package postgres opens the lib/pq connection pool used by the note store
// and provides a transaction helper.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and waits for the database to answer, retrying with
// backoff while it starts up. Errors no retry can fix, such as bad
// credentials or a missing database, fail immediately.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	connector, err := pq.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Retryable:    Retryable,
	}, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{
		DB:     db,
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}, nil
}

// Retryable reports whether err may go away on its own. Server errors in
// the authorization, catalog and syntax classes never do.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return true
	}
	switch pqErr.Code.Class() {
	case "28", // invalid authorization specification
		"3D", // invalid catalog name
		"42": // syntax error or access rule violation
		return false
	}
	return true
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction, committing when it returns nil and rolling
// back on error or panic. opts may be nil.
func (c *Client) InTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			c.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// PoolStats exposes database/sql pool counters.
func (c *Client) PoolStats() sql.DBStats {
	return c.DB.Stats()
}
