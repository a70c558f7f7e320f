// Package similarity wires the tokenizer, corpus index, vectorizer, matrix
// computer and relationship extractor into the two entry points used by
// callers: Similarities and Relationships.
package similarity

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/corpus"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/vectorizer"
)

// Options configures an Engine.
type Options struct {
	Workers        int
	DisablePruning bool
}

// Engine is stateless and safe for concurrent use.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

// Snapshot is the result of one pipeline run over a fixed corpus. It lets a
// request answer several queries without recomputing the matrix.
type Snapshot struct {
	Fingerprint string
	// IDs lists the corpus documents in input order. A single-document
	// corpus has an empty Matrix, so membership is checked here too.
	IDs    []string
	Matrix matrix.Matrix
	Stats  Stats
}

// Stats summarizes the work done to build a Snapshot.
type Stats struct {
	matrix.Stats
	Vocabulary int
}

func NewEngine(opts Options) *Engine {
	return &Engine{
		opts:   opts,
		logger: slog.Default().With("component", "similarity-engine"),
	}
}

// Similarities computes the full pairwise similarity matrix.
func (e *Engine) Similarities(docs []corpus.Document) (matrix.Matrix, error) {
	snap, err := e.Prepare(docs)
	if err != nil {
		return nil, err
	}
	return snap.Matrix, nil
}

// Relationships runs the pipeline and returns the pairs at or above
// threshold. The threshold is checked before any work is done.
func (e *Engine) Relationships(docs []corpus.Document, threshold float64) ([]relationship.Relationship, error) {
	if err := relationship.ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	snap, err := e.Prepare(docs)
	if err != nil {
		return nil, err
	}
	return snap.Relationships(threshold)
}

// Prepare builds the corpus index, vectors and matrix for docs.
func (e *Engine) Prepare(docs []corpus.Document) (*Snapshot, error) {
	idx := corpus.Build(docs)
	vectors := make([]vectorizer.Vector, len(idx.Documents))
	for i, doc := range idx.Documents {
		v, err := vectorizer.FromTokens(idx.Terms[i], idx.DocFreq, idx.TotalDocs)
		if err != nil {
			return nil, fmt.Errorf("vectorizing document %s: %w", doc.ID, err)
		}
		vectors[i] = v
	}
	m, mstats, err := matrix.Compute(idx.IDs(), vectors, matrix.Options{
		Workers:        e.opts.Workers,
		DisablePruning: e.opts.DisablePruning,
	})
	if err != nil {
		e.logger.Error("similarity computation failed", "documents", idx.TotalDocs, "error", err)
		return nil, fmt.Errorf("computing similarity matrix: %w", err)
	}
	stats := Stats{Stats: mstats, Vocabulary: idx.Vocabulary()}
	e.logger.Debug("similarity matrix computed",
		"documents", stats.Documents,
		"vocabulary", stats.Vocabulary,
		"pairs_scored", stats.PairsScored,
		"pairs_pruned", stats.PairsPruned,
		"workers", stats.Workers,
		"duration_ms", stats.ComputeTime.Milliseconds(),
	)
	return &Snapshot{
		Fingerprint: corpus.Fingerprint(idx.Documents),
		IDs:         idx.IDs(),
		Matrix:      m,
		Stats:       stats,
	}, nil
}

// Similarities returns the snapshot's matrix. Callers must not modify it.
func (s *Snapshot) Similarities() matrix.Matrix {
	return s.Matrix
}

// Relationships extracts the pairs at or above threshold.
func (s *Snapshot) Relationships(threshold float64) ([]relationship.Relationship, error) {
	return relationship.Extract(s.Matrix, threshold)
}

// RelatedTo returns the seeds and their direct neighbours at or above
// threshold. Seeds that are not in the corpus are dropped.
func (s *Snapshot) RelatedTo(seeds []string, threshold float64) ([]string, error) {
	known := make([]string, 0, len(seeds))
	for _, id := range seeds {
		if s.Contains(id) {
			known = append(known, id)
		}
	}
	return relationship.RelatedTo(known, s.Matrix, threshold)
}

// Contains reports whether id is a document of the snapshot's corpus.
func (s *Snapshot) Contains(id string) bool {
	if _, ok := s.Matrix[id]; ok {
		return true
	}
	return slices.Contains(s.IDs, id)
}
