package relationship

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/matrix"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

// a-b 0.9, a-c 0.5, b-c 0.3, c-d 0.6, d isolated from a and b.
var sample = matrix.Matrix{
	"a": {"b": 0.9, "c": 0.5, "d": 0},
	"b": {"a": 0.9, "c": 0.3, "d": 0},
	"c": {"a": 0.5, "b": 0.3, "d": 0.6},
	"d": {"a": 0, "b": 0, "c": 0.6},
}

func TestValidateThreshold(t *testing.T) {
	for _, ok := range []float64{0, 0.3, 1} {
		assert.NoError(t, ValidateThreshold(ok), "threshold %v", ok)
	}
	for _, bad := range []float64{-0.01, 1.0001, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := ValidateThreshold(bad)
		require.Error(t, err, "threshold %v", bad)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidThreshold))
	}
}

func TestExtract(t *testing.T) {
	rels, err := Extract(sample, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []Relationship{
		{SourceID: "a", TargetID: "b", Strength: 0.9},
		{SourceID: "c", TargetID: "d", Strength: 0.6},
		{SourceID: "a", TargetID: "c", Strength: 0.5},
	}, rels, "inclusive boundary, one entry per pair, strongest first")
}

func TestExtractZeroThresholdIncludesEveryPair(t *testing.T) {
	rels, err := Extract(sample, 0)
	require.NoError(t, err)
	assert.Len(t, rels, 6)
}

func TestExtractEmptyMatrix(t *testing.T) {
	rels, err := Extract(matrix.Matrix{}, 0.3)
	require.NoError(t, err)
	assert.NotNil(t, rels)
	assert.Empty(t, rels)
}

func TestExtractRejectsInvalidThreshold(t *testing.T) {
	_, err := Extract(sample, 1.5)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidThreshold))
	_, err = ExtractDirected(sample, -1)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidThreshold))
}

func TestExtractMonotonic(t *testing.T) {
	thresholds := []float64{0, 0.1, 0.3, 0.5, 0.6, 0.9, 1}
	for i := 0; i < len(thresholds)-1; i++ {
		low, err := Extract(sample, thresholds[i])
		require.NoError(t, err)
		high, err := Extract(sample, thresholds[i+1])
		require.NoError(t, err)
		for _, r := range high {
			assert.Contains(t, low, r)
		}
	}
}

func TestExtractDirected(t *testing.T) {
	rels, err := ExtractDirected(sample, 0.6)
	require.NoError(t, err)
	assert.Equal(t, []Relationship{
		{SourceID: "a", TargetID: "b", Strength: 0.9},
		{SourceID: "b", TargetID: "a", Strength: 0.9},
		{SourceID: "c", TargetID: "d", Strength: 0.6},
		{SourceID: "d", TargetID: "c", Strength: 0.6},
	}, rels)
}

func TestRelatedTo(t *testing.T) {
	tests := []struct {
		name      string
		seeds     []string
		threshold float64
		want      []string
	}{
		{"one hop only", []string{"a"}, 0.5, []string{"a", "b", "c"}},
		{"neighbour of neighbour excluded", []string{"b"}, 0.5, []string{"a", "b"}},
		{"multiple seeds", []string{"b", "d"}, 0.6, []string{"a", "b", "c", "d"}},
		{"seed without neighbours", []string{"d"}, 0.7, []string{"d"}},
		{"unknown seed kept", []string{"zz"}, 0.1, []string{"zz"}},
		{"no seeds", nil, 0.1, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RelatedTo(tt.seeds, sample, tt.threshold)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	_, err := RelatedTo([]string{"a"}, sample, 2)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidThreshold))
}

func TestNeighbours(t *testing.T) {
	rels, err := Neighbours("c", sample, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []Relationship{
		{SourceID: "c", TargetID: "d", Strength: 0.6},
		{SourceID: "c", TargetID: "a", Strength: 0.5},
	}, rels)

	rels, err = Neighbours("unknown", sample, 0)
	require.NoError(t, err)
	assert.NotNil(t, rels)
	assert.Empty(t, rels)

	_, err = Neighbours("c", sample, 2)
	assert.ErrorIs(t, err, apperrors.ErrInvalidThreshold)
}
