// Package cache shares computed similarity matrices between service replicas
// through Redis. Entries are keyed by corpus fingerprint, so a stale entry is
// never served for a changed corpus; Invalidate only reclaims space.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

const keyPrefix = "similarity:matrix:"

// Backend is the subset of the Redis client the cache uses.
type Backend interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
}

type MatrixCache struct {
	backend Backend
	cfg     config.RedisConfig
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a MatrixCache. onBreakerChange may be nil.
func New(backend Backend, cfg config.RedisConfig, onBreakerChange func(string, resilience.State)) *MatrixCache {
	return &MatrixCache{
		backend: backend,
		cfg:     cfg,
		breaker: resilience.NewCircuitBreaker("redis-matrix-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.BreakerTrip,
			ResetTimeout:     30 * time.Second,
			OnStateChange:    onBreakerChange,
		}),
		logger: slog.Default().With("component", "matrix-cache"),
	}
}

// Get returns the matrix stored for fingerprint. Backend failures and
// corrupt entries are logged and reported as a miss.
func (c *MatrixCache) Get(ctx context.Context, fingerprint string) (matrix.Matrix, bool) {
	key := buildKey(fingerprint)
	var data []byte
	err := c.call(ctx, "cache get", func(ctx context.Context) error {
		var err error
		data, err = c.backend.GetBytes(ctx, key)
		if pkgredis.IsNilError(err) {
			data = nil
			return nil
		}
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if data == nil {
		c.misses.Add(1)
		return nil, false
	}
	var m matrix.Matrix
	if err := json.Unmarshal(data, &m); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if m == nil {
		m = matrix.Matrix{}
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "key", key, "documents", m.Len())
	return m, true
}

// Set stores m under fingerprint with the configured TTL.
func (c *MatrixCache) Set(ctx context.Context, fingerprint string, m matrix.Matrix) error {
	key := buildKey(fingerprint)
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshalling matrix: %w", err)
	}
	return c.call(ctx, "cache set", func(ctx context.Context) error {
		return c.backend.Set(ctx, key, data, c.cfg.CacheTTL)
	})
}

// GetOrCompute returns the shared matrix for fingerprint or computes and
// stores it. A failing store never fails the computation. cached reports
// whether the matrix came from Redis.
func (c *MatrixCache) GetOrCompute(
	ctx context.Context,
	fingerprint string,
	computeFn func() (matrix.Matrix, error),
) (m matrix.Matrix, cached bool, err error) {
	if m, ok := c.Get(ctx, fingerprint); ok {
		return m, true, nil
	}
	val, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		m, err := computeFn()
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, fingerprint, m); err != nil {
			c.logger.Warn("cache set failed", "fingerprint", fingerprint, "error", err)
		}
		return m, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(matrix.Matrix), false, nil
}

// Invalidate deletes every shared matrix.
func (c *MatrixCache) Invalidate(ctx context.Context) error {
	var deleted int64
	err := c.call(ctx, "cache invalidate", func(ctx context.Context) error {
		var err error
		deleted, err = c.backend.DeleteByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating matrix cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *MatrixCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BreakerState exposes the Redis circuit state for readiness reporting.
func (c *MatrixCache) BreakerState() resilience.State {
	return c.breaker.State()
}

// call runs fn through the circuit breaker with the configured per-call
// timeout. An open circuit is reported as ErrCacheUnavailable.
func (c *MatrixCache) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, c.cfg.OpTimeout, name, fn)
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", apperrors.ErrCacheUnavailable, err)
	}
	return err
}

func buildKey(fingerprint string) string {
	return keyPrefix + fingerprint
}
