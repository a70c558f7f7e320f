// Package relationship turns a similarity matrix into the sparse edge list
// consumed by graph and context-selection callers.
package relationship

import (
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// Relationship links two documents whose similarity reached a threshold.
type Relationship struct {
	SourceID string  `json:"sourceId" yaml:"sourceId"`
	TargetID string  `json:"targetId" yaml:"targetId"`
	Strength float64 `json:"strength" yaml:"strength"`
}

// ValidateThreshold rejects thresholds outside [0, 1]. Values are never
// clamped.
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: %v is outside [0, 1]", apperrors.ErrInvalidThreshold, threshold)
	}
	return nil
}

// Extract returns one Relationship per unordered pair scoring at least
// threshold. SourceID is the smaller id of the pair.
func Extract(m matrix.Matrix, threshold float64) ([]Relationship, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	out := make([]Relationship, 0)
	for _, pair := range m.Pairs() {
		if pair.Score >= threshold {
			out = append(out, Relationship{SourceID: pair.A, TargetID: pair.B, Strength: pair.Score})
		}
	}
	sortByStrength(out)
	return out, nil
}

// ExtractDirected is Extract with both orientations of every pair.
func ExtractDirected(m matrix.Matrix, threshold float64) ([]Relationship, error) {
	undirected, err := Extract(m, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, 2*len(undirected))
	for _, r := range undirected {
		out = append(out, r, Relationship{SourceID: r.TargetID, TargetID: r.SourceID, Strength: r.Strength})
	}
	sortByStrength(out)
	return out, nil
}

// RelatedTo returns the seeds together with every document directly linked
// to a seed at or above threshold. Neighbours of neighbours are not
// followed. Seeds are returned as given; callers holding the corpus drop
// ids that are not part of it (see similarity.Snapshot.RelatedTo).
func RelatedTo(seeds []string, m matrix.Matrix, threshold float64) ([]string, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	related := make(map[string]struct{}, len(seeds))
	for _, seed := range seeds {
		related[seed] = struct{}{}
		for id, score := range m[seed] {
			if score >= threshold {
				related[id] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(related))
	for id := range related {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Neighbours returns the relationships from id to every document scoring at
// least threshold against it, with id as SourceID, strongest first.
func Neighbours(id string, m matrix.Matrix, threshold float64) ([]Relationship, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	out := make([]Relationship, 0)
	for other, score := range m[id] {
		if score >= threshold {
			out = append(out, Relationship{SourceID: id, TargetID: other, Strength: score})
		}
	}
	sortByStrength(out)
	return out, nil
}

func sortByStrength(rels []Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Strength != rels[j].Strength {
			return rels[i].Strength > rels[j].Strength
		}
		if rels[i].SourceID != rels[j].SourceID {
			return rels[i].SourceID < rels[j].SourceID
		}
		return rels[i].TargetID < rels[j].TargetID
	})
}
