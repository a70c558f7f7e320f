package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/resilience"
)

func sample() matrix.Matrix {
	return matrix.Matrix{
		"a": {"b": 0.25},
		"b": {"a": 0.25},
	}
}

func newCache(t *testing.T) (*MatrixCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.RedisConfig{
		Addr:        mr.Addr(),
		PoolSize:    4,
		CacheTTL:    time.Minute,
		OpTimeout:   time.Second,
		BreakerTrip: 2,
	}
	client, err := pkgredis.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg, nil), mr
}

func TestGetOrComputeStoresAndHits(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	calls := 0
	compute := func() (matrix.Matrix, error) {
		calls++
		return sample(), nil
	}

	m, cached, err := c.GetOrCompute(ctx, "fp1", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, sample(), m)
	assert.True(t, mr.Exists(keyPrefix+"fp1"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"fp1"))

	m, cached, err = c.GetOrCompute(ctx, "fp1", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, 0.25, m["b"]["a"])
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputeEmptyMatrix(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	_, _, err := c.GetOrCompute(ctx, "empty", func() (matrix.Matrix, error) { return matrix.Matrix{}, nil })
	require.NoError(t, err)

	m, ok := c.Get(ctx, "empty")
	require.True(t, ok)
	assert.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
}

func TestGetOrComputeCollapsesConcurrentMisses(t *testing.T) {
	c, _ := newCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (matrix.Matrix, error) {
		calls.Add(1)
		<-release
		return sample(), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "shared", compute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	c, mr := newCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "bad", func() (matrix.Matrix, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(keyPrefix+"bad"))
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set(keyPrefix+"junk", "{not json"))
	_, ok := c.Get(context.Background(), "junk")
	assert.False(t, ok)
}

func TestInvalidateRemovesOnlyMatrixKeys(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "fp1", sample()))
	require.NoError(t, c.Set(ctx, "fp2", sample()))
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(keyPrefix+"fp1"))
	assert.False(t, mr.Exists(keyPrefix+"fp2"))
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisOutageDegradesToCompute(t *testing.T) {
	c, mr := newCache(t)
	mr.Close()

	for range 3 {
		m, cached, err := c.GetOrCompute(context.Background(), "fp", func() (matrix.Matrix, error) { return sample(), nil })
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, sample(), m)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	assert.ErrorIs(t, c.Invalidate(context.Background()), apperrors.ErrCacheUnavailable)
}
