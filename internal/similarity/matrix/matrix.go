// Package matrix computes pairwise cosine similarity between TF-IDF vectors.
// Each unordered pair is scored exactly once and mirrored, so the result is
// symmetric by construction.
package matrix

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/vectorizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// tolerance absorbs rounding when two vectors are parallel.
const tolerance = 1e-9

// Matrix maps id -> id -> score. The diagonal is never present.
type Matrix map[string]map[string]float64

// Pair is one unordered entry of a Matrix with A < B.
type Pair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// Options tunes how Compute schedules work. Neither option changes results.
type Options struct {
	// Workers bounds concurrent row computations. Zero means GOMAXPROCS.
	Workers int
	// DisablePruning scores every pair instead of skipping pairs that
	// share no weighted term.
	DisablePruning bool
}

// Stats describes a Compute run.
type Stats struct {
	Documents   int
	PairsTotal  int
	PairsScored int
	PairsPruned int
	Workers     int
	ComputeTime time.Duration
}

// Cosine returns the cosine similarity of two sparse vectors, or 0 when
// either has zero magnitude.
func Cosine(a, b vectorizer.Vector) float64 {
	magA, magB := a.Magnitude(), b.Magnitude()
	if magA == 0 || magB == 0 {
		return 0
	}
	wa, wb := a.Weights(), b.Weights()
	var dot float64
	i, j := 0, 0
	for i < len(wa) && j < len(wb) {
		switch {
		case wa[i].Term == wb[j].Term:
			dot += wa[i].Value * wb[j].Value
			i++
			j++
		case wa[i].Term < wb[j].Term:
			i++
		default:
			j++
		}
	}
	return dot / (magA * magB)
}

// Compute scores every pair i < j of ids, whose vectors are given in the
// same order. ids must be unique. Fewer than two documents yield an empty
// matrix.
func Compute(ids []string, vectors []vectorizer.Vector, opts Options) (Matrix, Stats, error) {
	start := time.Now()
	n := len(ids)
	if n != len(vectors) {
		return nil, Stats{}, fmt.Errorf("%w: %d ids but %d vectors", apperrors.ErrInvalidInput, n, len(vectors))
	}
	seen := make(map[string]struct{}, n)
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, Stats{}, fmt.Errorf("%w: duplicate document id %q", apperrors.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	stats := Stats{Documents: n}
	if n < 2 {
		stats.ComputeTime = time.Since(start)
		return Matrix{}, stats, nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n-1 {
		workers = n - 1
	}
	stats.Workers = workers

	var postings map[string][]int
	if !opts.DisablePruning {
		postings = buildPostings(vectors)
	}

	// rows[i][k] holds the score of (i, i+1+k). Each goroutine writes only
	// its own row.
	rows := make([][]float64, n-1)
	scored := make([]int, n-1)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < n-1; i++ {
		g.Go(func() error {
			row := make([]float64, n-1-i)
			if postings == nil {
				for j := i + 1; j < n; j++ {
					s, err := checkedCosine(ids[i], ids[j], vectors[i], vectors[j])
					if err != nil {
						return err
					}
					row[j-i-1] = s
				}
				scored[i] = len(row)
			} else {
				for _, j := range candidates(i, vectors[i], postings) {
					s, err := checkedCosine(ids[i], ids[j], vectors[i], vectors[j])
					if err != nil {
						return err
					}
					row[j-i-1] = s
					scored[i]++
				}
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	m := make(Matrix, n)
	for _, id := range ids {
		m[id] = make(map[string]float64, n-1)
	}
	for i, row := range rows {
		for k, s := range row {
			j := i + 1 + k
			m[ids[i]][ids[j]] = s
			m[ids[j]][ids[i]] = s
		}
		stats.PairsScored += scored[i]
	}
	stats.PairsTotal = n * (n - 1) / 2
	stats.PairsPruned = stats.PairsTotal - stats.PairsScored
	stats.ComputeTime = time.Since(start)
	return m, stats, nil
}

// Score returns the similarity of a and b. ok is false for unknown ids and
// for a == b.
func (m Matrix) Score(a, b string) (score float64, ok bool) {
	row, exists := m[a]
	if !exists {
		return 0, false
	}
	score, ok = row[b]
	return score, ok
}

// Len is the number of documents in the matrix.
func (m Matrix) Len() int {
	return len(m)
}

// IDs returns the document ids in ascending order.
func (m Matrix) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Pairs lists every unordered pair once, ordered by (A, B).
func (m Matrix) Pairs() []Pair {
	ids := m.IDs()
	pairs := make([]Pair, 0, len(ids)*(len(ids)-1)/2+1)
	for _, a := range ids {
		for b, score := range m[a] {
			if a < b {
				pairs = append(pairs, Pair{A: a, B: b, Score: score})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

// checkedCosine fails loudly on a score no valid input can produce.
func checkedCosine(idA, idB string, a, b vectorizer.Vector) (float64, error) {
	s := Cosine(a, b)
	if math.IsNaN(s) || math.IsInf(s, 0) || s < -tolerance || s > 1+tolerance {
		return 0, apperrors.Invariantf("similarity %v for pair (%s, %s)", s, idA, idB)
	}
	return math.Min(1, math.Max(0, s)), nil
}

// buildPostings maps each weighted term to the ascending list of documents
// that carry it.
func buildPostings(vectors []vectorizer.Vector) map[string][]int {
	postings := make(map[string][]int)
	for i, v := range vectors {
		for _, w := range v.Weights() {
			postings[w.Term] = append(postings[w.Term], i)
		}
	}
	return postings
}

// candidates returns the documents after i that share at least one weighted
// term with v, in ascending order.
func candidates(i int, v vectorizer.Vector, postings map[string][]int) []int {
	seen := make(map[int]struct{})
	for _, w := range v.Weights() {
		list := postings[w.Term]
		// Lists are ascending; skip everything up to and including i.
		start := sort.SearchInts(list, i+1)
		for _, j := range list[start:] {
			seen[j] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for j := range seen {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}
