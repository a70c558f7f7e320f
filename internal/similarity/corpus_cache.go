package similarity

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/corpus"
)

// CorpusCache keeps the Snapshot of the most recent corpus version.
// Invalidate drops it entirely; there is no partial invalidation because
// document frequencies are corpus-global.
type CorpusCache struct {
	engine *Engine
	mu     sync.RWMutex
	snap   *Snapshot
	// generation changes on every Invalidate so a build that started
	// before an invalidation cannot repopulate the cache.
	generation uint64
	group      singleflight.Group
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

func NewCorpusCache(engine *Engine) *CorpusCache {
	return &CorpusCache{
		engine: engine,
		logger: slog.Default().With("component", "corpus-cache"),
	}
}

// Snapshot returns the cached snapshot for docs, building it on a miss.
func (c *CorpusCache) Snapshot(docs []corpus.Document) (*Snapshot, bool, error) {
	return c.GetOrBuild(corpus.Fingerprint(docs), func() (*Snapshot, error) {
		return c.engine.Prepare(docs)
	})
}

// GetOrBuild returns the snapshot cached under fingerprint or runs build.
// Concurrent misses for the same fingerprint share one build.
func (c *CorpusCache) GetOrBuild(fingerprint string, build func() (*Snapshot, error)) (*Snapshot, bool, error) {
	if snap, ok := c.Get(fingerprint); ok {
		return snap, true, nil
	}
	c.misses.Add(1)
	val, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		c.mu.RLock()
		generation := c.generation
		c.mu.RUnlock()
		snap, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == generation {
			c.snap = snap
		}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Snapshot), false, nil
}

// Get returns the cached snapshot when it matches fingerprint.
func (c *CorpusCache) Get(fingerprint string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap != nil && c.snap.Fingerprint == fingerprint {
		c.hits.Add(1)
		return c.snap, true
	}
	return nil, false
}

// Invalidate discards the cached snapshot.
func (c *CorpusCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.generation++
	c.mu.Unlock()
	c.logger.Info("corpus cache invalidated")
}

func (c *CorpusCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
