package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	docs := []Document{
		{ID: "a", Text: "first"},
		{ID: "b", Text: "second"},
		{ID: "a", Text: "replacement"},
	}
	got := Normalize(docs)
	assert.Equal(t, []Document{
		{ID: "a", Text: "replacement"},
		{ID: "b", Text: "second"},
	}, got)
	assert.Len(t, docs, 3, "input must not be modified")
}

func TestBuildDocumentFrequency(t *testing.T) {
	docs := []Document{
		{ID: "1", Text: "garden garden garden tomatoes"},
		{ID: "2", Text: "garden notes"},
		{ID: "3", Text: "the and of"},
	}
	df := BuildDocumentFrequency(docs)
	assert.Equal(t, map[string]int{
		"garden":   2,
		"tomatoes": 1,
		"notes":    1,
	}, df)
}

func TestBuildDocumentFrequencyOrderIndependent(t *testing.T) {
	docs := []Document{
		{ID: "1", Text: "alpha beta gamma"},
		{ID: "2", Text: "beta gamma delta"},
		{ID: "3", Text: "gamma delta epsilon"},
	}
	reversed := []Document{docs[2], docs[1], docs[0]}
	assert.Equal(t, BuildDocumentFrequency(docs), BuildDocumentFrequency(reversed))
}

func TestBuild(t *testing.T) {
	idx := Build([]Document{
		{ID: "x", Text: "Machine learning models"},
		{ID: "y", Text: "deep learning"},
		{ID: "x", Text: "machine learning"},
	})
	require.Equal(t, 2, idx.TotalDocs)
	assert.Equal(t, []string{"x", "y"}, idx.IDs())
	assert.Equal(t, [][]string{{"machine", "learning"}, {"deep", "learning"}}, idx.Terms)
	assert.Equal(t, 2, idx.DocFreq["learning"])
	assert.Equal(t, 1, idx.DocFreq["machine"])
	assert.NotContains(t, idx.DocFreq, "models", "the replaced text no longer contributes")
	assert.Equal(t, 3, idx.Vocabulary())
}

func TestBuildEmpty(t *testing.T) {
	idx := Build(nil)
	assert.Zero(t, idx.TotalDocs)
	assert.Empty(t, idx.DocFreq)
	assert.Empty(t, idx.IDs())
}

func TestFingerprint(t *testing.T) {
	base := []Document{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}}

	assert.Equal(t, Fingerprint(base), Fingerprint([]Document{base[1], base[0]}))
	assert.NotEqual(t, Fingerprint(base), Fingerprint([]Document{{ID: "a", Text: "one"}, {ID: "b", Text: "tw0"}}))
	assert.NotEqual(t, Fingerprint(base), Fingerprint(base[:1]))
	assert.NotEqual(t,
		Fingerprint([]Document{{ID: "ab", Text: "c"}}),
		Fingerprint([]Document{{ID: "a", Text: "bc"}}),
	)
}
