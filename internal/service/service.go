// Package service ties the note store to the similarity engine and its
// caches, and answers the queries exposed over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/contextsel"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/cache"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/corpus"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/tracing"
)

// Options carries the optional collaborators of a Service. Nil fields
// disable the corresponding feature.
type Options struct {
	Shared  *cache.MatrixCache
	Metrics *metrics.Metrics
	Tracker analytics.Tracker
	// MaxDocuments rejects larger corpora. Zero means unlimited.
	MaxDocuments int
}

type Service struct {
	store        notes.Store
	engine       *similarity.Engine
	corpus       *similarity.CorpusCache
	shared       *cache.MatrixCache
	metrics      *metrics.Metrics
	tracker      analytics.Tracker
	maxDocuments int
	now          func() time.Time
	logger       *slog.Logger
}

func New(store notes.Store, engine *similarity.Engine, opts Options) *Service {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = analytics.Noop{}
	}
	return &Service{
		store:        store,
		engine:       engine,
		corpus:       similarity.NewCorpusCache(engine),
		shared:       opts.Shared,
		metrics:      opts.Metrics,
		tracker:      tracker,
		maxDocuments: opts.MaxDocuments,
		now:          time.Now,
		logger:       slog.Default().With("component", "constellation-service"),
	}
}

// Similarities computes the matrix for caller-supplied documents.
func (s *Service) Similarities(ctx context.Context, docs []corpus.Document) (matrix.Matrix, error) {
	start := time.Now()
	snap, err := s.prepare(ctx, docs)
	if err != nil {
		return nil, err
	}
	s.track(ctx, analytics.QueryEvent{
		Type:      analytics.EventSimilarities,
		Documents: snap.Matrix.Len(),
		Returned:  snap.Matrix.Len(),
	}, nil, start)
	return snap.Matrix, nil
}

// Relationships extracts thresholded relationships for caller-supplied
// documents. The threshold is checked before any work is done.
func (s *Service) Relationships(ctx context.Context, docs []corpus.Document, threshold float64) ([]relationship.Relationship, error) {
	if err := relationship.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	start := time.Now()
	snap, err := s.prepare(ctx, docs)
	if err != nil {
		return nil, err
	}
	rels, err := snap.Relationships(threshold)
	if err != nil {
		return nil, err
	}
	s.observeRelationships(len(rels))
	s.track(ctx, analytics.QueryEvent{
		Type:          analytics.EventRelationships,
		Documents:     snap.Matrix.Len(),
		Relationships: len(rels),
		Returned:      len(rels),
	}, &threshold, start)
	return rels, nil
}

// RelatedDocuments returns the seeds and their direct neighbours among
// caller-supplied documents.
func (s *Service) RelatedDocuments(ctx context.Context, docs []corpus.Document, seeds []string, threshold float64) ([]string, error) {
	if err := relationship.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: at least one seed id is required", apperrors.ErrInvalidInput)
	}
	start := time.Now()
	snap, err := s.prepare(ctx, docs)
	if err != nil {
		return nil, err
	}
	ids, err := snap.RelatedTo(seeds, threshold)
	if err != nil {
		return nil, err
	}
	s.track(ctx, analytics.QueryEvent{
		Type:      analytics.EventRelated,
		Documents: snap.Matrix.Len(),
		Returned:  len(ids),
	}, &threshold, start)
	return ids, nil
}

// Matrix returns the similarity matrix of the stored notes.
func (s *Service) Matrix(ctx context.Context) (matrix.Matrix, error) {
	snap, _, _, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Matrix, nil
}

// Graph builds the constellation graph of the stored notes.
func (s *Service) Graph(ctx context.Context, threshold float64, contentEdges bool) (graph.Graph, error) {
	if err := relationship.ValidateThreshold(threshold); err != nil {
		return graph.Graph{}, err
	}
	start := time.Now()
	snap, ns, hit, err := s.snapshot(ctx)
	if err != nil {
		return graph.Graph{}, err
	}
	rels, err := snap.Relationships(threshold)
	if err != nil {
		return graph.Graph{}, err
	}
	s.observeRelationships(len(rels))
	g := graph.Build(ns, notes.CollectTags(ns), rels, graph.Options{ContentEdges: contentEdges})
	s.track(ctx, analytics.QueryEvent{
		Type:          analytics.EventGraph,
		Documents:     len(ns),
		Relationships: len(rels),
		Returned:      len(g.Edges),
		CacheHit:      hit,
	}, &threshold, start)
	return g, nil
}

// RelatedNote is a stored note linked to a query note.
type RelatedNote struct {
	Note     notes.Note `json:"note"`
	Strength float64    `json:"strength"`
}

// RelatedNotes returns the stored notes whose similarity to id reaches
// threshold, strongest first.
func (s *Service) RelatedNotes(ctx context.Context, id string, threshold float64) ([]RelatedNote, error) {
	if err := relationship.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	start := time.Now()
	snap, ns, hit, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	rels, err := relationship.Neighbours(id, snap.Matrix, threshold)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]notes.Note, len(ns))
	for _, n := range ns {
		byID[n.ID] = n
	}
	out := make([]RelatedNote, 0, len(rels))
	for _, r := range rels {
		if n, ok := byID[r.TargetID]; ok {
			out = append(out, RelatedNote{Note: n, Strength: r.Strength})
		}
	}
	s.track(ctx, analytics.QueryEvent{
		Type:      analytics.EventRelated,
		Documents: len(ns),
		Returned:  len(out),
		CacheHit:  hit,
	}, &threshold, start)
	return out, nil
}

// ContextResult is the assembled assistant context.
type ContextResult struct {
	Notes   []notes.Note `json:"notes"`
	Content string       `json:"content"`
}

// Context selects stored notes per req and renders them.
func (s *Service) Context(ctx context.Context, req contextsel.Request) (ContextResult, error) {
	if err := req.Validate(); err != nil {
		return ContextResult{}, err
	}
	start := time.Now()
	ns, err := s.store.List(ctx)
	if err != nil {
		return ContextResult{}, fmt.Errorf("listing notes: %w", err)
	}
	hit := false
	related := func(seeds []string, threshold float64) ([]string, error) {
		snap, _, cacheHit, err := s.snapshotOf(ctx, ns)
		if err != nil {
			return nil, err
		}
		hit = cacheHit
		return snap.RelatedTo(seeds, threshold)
	}
	selected, err := contextsel.Select(ns, req, related)
	if err != nil {
		return ContextResult{}, err
	}
	group := req.GroupByTags && req.Mode == contextsel.ModeAll
	s.track(ctx, analytics.QueryEvent{
		Type:      analytics.EventContext,
		Documents: len(ns),
		Returned:  len(selected),
		CacheHit:  hit,
	}, req.Threshold, start)
	return ContextResult{Notes: selected, Content: contextsel.Format(selected, group)}, nil
}

// ListNotes returns every stored note ordered by ID.
func (s *Service) ListNotes(ctx context.Context) ([]notes.Note, error) {
	return s.store.List(ctx)
}

// UpsertNote validates req and creates or replaces note id.
func (s *Service) UpsertNote(ctx context.Context, id string, req notes.UpsertRequest) (notes.Note, error) {
	if err := req.Validate(); err != nil {
		return notes.Note{}, err
	}
	stored, err := s.store.Upsert(ctx, notes.NewNote(id, req, s.now()))
	if err != nil {
		return notes.Note{}, err
	}
	s.invalidateLocal("write")
	return stored, nil
}

// DeleteNote removes note id.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateLocal("write")
	return nil
}

// Invalidate drops this replica's corpus snapshot. It is called for note
// change events published by other replicas.
func (s *Service) Invalidate(_ context.Context, reason string) error {
	s.logger.Debug("invalidating corpus cache", "reason", reason)
	s.invalidateLocal("event")
	return nil
}

// InvalidateAll drops the corpus snapshot and every shared matrix.
func (s *Service) InvalidateAll(ctx context.Context) error {
	s.invalidateLocal("api")
	s.track(ctx, analytics.QueryEvent{Type: analytics.EventInvalidate}, nil, time.Now())
	if s.shared == nil {
		return nil
	}
	return s.shared.Invalidate(ctx)
}

// CacheCounters is a hit/miss pair.
type CacheCounters struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type CacheStats struct {
	Corpus CacheCounters  `json:"corpus"`
	Shared *CacheCounters `json:"shared,omitempty"`
}

func (s *Service) CacheStats() CacheStats {
	hits, misses := s.corpus.Stats()
	stats := CacheStats{Corpus: CacheCounters{Hits: hits, Misses: misses}}
	if s.shared != nil {
		hits, misses := s.shared.Stats()
		stats.Shared = &CacheCounters{Hits: hits, Misses: misses}
	}
	return stats
}

// snapshot lists the stored notes and returns their snapshot.
func (s *Service) snapshot(ctx context.Context) (*similarity.Snapshot, []notes.Note, bool, error) {
	ns, err := s.store.List(ctx)
	if err != nil {
		return nil, nil, false, fmt.Errorf("listing notes: %w", err)
	}
	return s.snapshotOf(ctx, ns)
}

// snapshotOf returns the snapshot of ns from the corpus cache, building it
// through the shared cache on a miss. hit reports a corpus cache hit.
func (s *Service) snapshotOf(ctx context.Context, ns []notes.Note) (*similarity.Snapshot, []notes.Note, bool, error) {
	if err := s.checkSize(len(ns)); err != nil {
		return nil, nil, false, err
	}
	ctx, span := tracing.Start(ctx, "corpus_cache.lookup")
	defer span.End()
	docs := notes.Documents(ns)
	fp := corpus.Fingerprint(docs)
	snap, hit, err := s.corpus.GetOrBuild(fp, func() (*similarity.Snapshot, error) {
		return s.build(ctx, fp, docs)
	})
	if err != nil {
		span.Fail(err)
		return nil, nil, false, err
	}
	span.SetAttr("hit", hit)
	s.countLookup("corpus", hit)
	return snap, ns, hit, nil
}

// prepare builds a snapshot for ad-hoc documents without touching the
// corpus cache, which belongs to the stored notes.
func (s *Service) prepare(ctx context.Context, docs []corpus.Document) (*similarity.Snapshot, error) {
	if err := s.checkSize(len(docs)); err != nil {
		return nil, err
	}
	return s.build(ctx, corpus.Fingerprint(docs), docs)
}

func (s *Service) build(ctx context.Context, fp string, docs []corpus.Document) (*similarity.Snapshot, error) {
	ctx, span := tracing.Start(ctx, "similarity.build")
	defer span.End()
	span.SetAttr("documents", len(docs))
	span.SetAttr("fingerprint", fp)
	if s.shared == nil {
		snap, err := s.compute(ctx, docs)
		span.Fail(err)
		return snap, err
	}
	var computed *similarity.Snapshot
	m, cached, err := s.shared.GetOrCompute(ctx, fp, func() (matrix.Matrix, error) {
		snap, err := s.compute(ctx, docs)
		if err != nil {
			return nil, err
		}
		computed = snap
		return snap.Matrix, nil
	})
	if err != nil {
		span.Fail(err)
		return nil, err
	}
	span.SetAttr("shared_cache_hit", cached)
	s.countLookup("shared", cached)
	if computed != nil {
		return computed, nil
	}
	// Served from Redis, or computed by a concurrent caller sharing the
	// flight; only the document count is known.
	if s.metrics != nil {
		s.metrics.SimilarityBuildsTotal.WithLabelValues("shared_cache", "ok").Inc()
	}
	ids := make([]string, 0, len(docs))
	for _, d := range corpus.Normalize(docs) {
		ids = append(ids, d.ID)
	}
	return &similarity.Snapshot{
		Fingerprint: fp,
		IDs:         ids,
		Matrix:      m,
		Stats:       similarity.Stats{Stats: matrix.Stats{Documents: m.Len()}},
	}, nil
}

func (s *Service) compute(ctx context.Context, docs []corpus.Document) (*similarity.Snapshot, error) {
	_, span := tracing.Start(ctx, "similarity.compute")
	defer span.End()
	snap, err := s.engine.Prepare(docs)
	span.Fail(err)
	if err == nil {
		span.SetAttr("vocabulary", snap.Stats.Vocabulary)
		span.SetAttr("pairs_scored", snap.Stats.PairsScored)
		span.SetAttr("pairs_pruned", snap.Stats.PairsPruned)
		span.SetAttr("workers", snap.Stats.Workers)
	}
	if s.metrics == nil {
		return snap, err
	}
	if err != nil {
		s.metrics.SimilarityBuildsTotal.WithLabelValues("computed", "error").Inc()
		if errors.Is(err, apperrors.ErrInvariantViolation) {
			s.metrics.InvariantViolationsTotal.Inc()
		}
		return nil, err
	}
	st := snap.Stats
	s.metrics.SimilarityBuildsTotal.WithLabelValues("computed", "ok").Inc()
	s.metrics.SimilarityBuildDuration.Observe(st.ComputeTime.Seconds())
	s.metrics.SimilarityPairsTotal.WithLabelValues("scored").Add(float64(st.PairsScored))
	s.metrics.SimilarityPairsTotal.WithLabelValues("pruned").Add(float64(st.PairsPruned))
	s.metrics.CorpusDocuments.Set(float64(st.Documents))
	return snap, nil
}

func (s *Service) checkSize(n int) error {
	if s.maxDocuments > 0 && n > s.maxDocuments {
		return fmt.Errorf("%w: %d documents exceeds the limit of %d", apperrors.ErrInvalidInput, n, s.maxDocuments)
	}
	return nil
}

func (s *Service) invalidateLocal(trigger string) {
	s.corpus.Invalidate()
	if s.metrics != nil {
		s.metrics.CacheInvalidationsTotal.WithLabelValues(trigger).Inc()
	}
}

func (s *Service) countLookup(layer string, hit bool) {
	if s.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	s.metrics.CacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

func (s *Service) observeRelationships(n int) {
	if s.metrics != nil {
		s.metrics.RelationshipsEmitted.Observe(float64(n))
	}
}

func (s *Service) track(ctx context.Context, event analytics.QueryEvent, threshold *float64, start time.Time) {
	event.Threshold = threshold
	event.LatencyMs = time.Since(start).Milliseconds()
	event.Timestamp = s.now().UTC()
	event.RequestID = logger.RequestIDFromContext(ctx)
	s.tracker.Track(string(event.Type), event)
}
