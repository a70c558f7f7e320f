// Package vectorizer builds sparse TF-IDF vectors from document text and
// corpus document frequencies.
package vectorizer

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// Weight is one non-zero entry of a sparse vector.
type Weight struct {
	Term  string
	Value float64
}

// Vector is a sparse TF-IDF vector sorted by term. Absent terms weigh 0.
type Vector struct {
	weights   []Weight
	magnitude float64
}

// BuildVector tokenizes text and weights each term against the corpus.
func BuildVector(text string, docFreq map[string]int, totalDocs int) (Vector, error) {
	return FromTokens(tokenizer.Tokenize(text), docFreq, totalDocs)
}

// FromTokens weights an already tokenized document. A document without
// tokens yields the empty vector.
func FromTokens(tokens []string, docFreq map[string]int, totalDocs int) (Vector, error) {
	if len(tokens) == 0 {
		return Vector{}, nil
	}
	counts := make(map[string]int, len(tokens))
	for _, term := range tokens {
		counts[term]++
	}
	weights := make([]Weight, 0, len(counts))
	var sumSquares float64
	for term, count := range counts {
		w := computeTF(count, len(tokens)) * computeIDF(totalDocs, docFreq[term])
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return Vector{}, apperrors.Invariantf("weight %v for term %q", w, term)
		}
		if w == 0 {
			continue
		}
		weights = append(weights, Weight{Term: term, Value: w})
	}
	sort.Slice(weights, func(i, j int) bool {
		return weights[i].Term < weights[j].Term
	})
	for _, w := range weights {
		sumSquares += w.Value * w.Value
	}
	return Vector{weights: weights, magnitude: math.Sqrt(sumSquares)}, nil
}

// Weights returns the non-zero entries in term order. The slice is shared;
// callers must not modify it.
func (v Vector) Weights() []Weight {
	return v.weights
}

// Weight returns the weight of term, or 0 when absent.
func (v Vector) Weight(term string) float64 {
	i := sort.Search(len(v.weights), func(i int) bool {
		return v.weights[i].Term >= term
	})
	if i < len(v.weights) && v.weights[i].Term == term {
		return v.weights[i].Value
	}
	return 0
}

// Magnitude is the Euclidean norm of the vector.
func (v Vector) Magnitude() float64 {
	return v.magnitude
}

// Len is the number of non-zero terms.
func (v Vector) Len() int {
	return len(v.weights)
}

// Map returns the vector as a term -> weight map.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.weights))
	for _, w := range v.weights {
		m[w.Term] = w.Value
	}
	return m
}

func computeTF(count int, totalTokens int) float64 {
	return float64(count) / float64(totalTokens)
}

// computeIDF treats an unseen term as appearing in one document and floors
// the result at 0, so a term present in every document carries no weight.
func computeIDF(totalDocs int, docFreq int) float64 {
	if docFreq <= 0 {
		docFreq = 1
	}
	if totalDocs <= 0 {
		return 0
	}
	return math.Max(0, math.Log(float64(totalDocs)/float64(docFreq)))
}
