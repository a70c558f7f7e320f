package contextsel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
)

var (
	base  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	work  = notes.Tag{ID: "t1", Name: "work"}
	ideas = notes.Tag{ID: "t2", Name: "ideas"}

	corpus = []notes.Note{
		{ID: "a", Title: "Roadmap", Content: "ship it", Tags: []notes.Tag{work, ideas}, UpdatedAt: base},
		{ID: "b", Title: "Standup", Content: "notes", Tags: []notes.Tag{work}, UpdatedAt: base.Add(time.Hour)},
		{ID: "c", Title: "Loose", Content: "thought", UpdatedAt: base.Add(2 * time.Hour)},
	}
)

func ptr[T any](v T) *T { return &v }

func ids(ns []notes.Note) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func noRelated(t *testing.T) RelatedFunc {
	return func([]string, float64) ([]string, error) {
		t.Fatal("related must not be called")
		return nil, nil
	}
}

func TestSelectModes(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []string
	}{
		{"all", Request{Mode: ModeAll}, []string{"a", "b", "c"}},
		{"selected", Request{Mode: ModeSelected, SelectedIDs: []string{"c", "a"}}, []string{"a", "c"}},
		{"new since", Request{Mode: ModeNew, Since: ptr(base.Add(30 * time.Minute))}, []string{"b", "c"}},
		{"new without since", Request{Mode: ModeNew}, []string{"a", "b", "c"}},
		{"related without seeds", Request{Mode: ModeRelated, Threshold: ptr(0.3)}, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(corpus, tt.req, noRelated(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSelectRelated(t *testing.T) {
	var gotSeeds []string
	var gotThreshold float64
	related := func(seeds []string, threshold float64) ([]string, error) {
		gotSeeds, gotThreshold = seeds, threshold
		return []string{"b", "c"}, nil
	}
	got, err := Select(corpus, Request{Mode: ModeRelated, SelectedIDs: []string{"b"}, Threshold: ptr(0.25)}, related)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))
	assert.Equal(t, []string{"b"}, gotSeeds)
	assert.Equal(t, 0.25, gotThreshold)

	boom := errors.New("boom")
	_, err = Select(corpus, Request{Mode: ModeRelated, SelectedIDs: []string{"b"}, Threshold: ptr(0.25)},
		func([]string, float64) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSelectErrors(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown mode", Request{Mode: "recent"}, apperrors.ErrInvalidInput},
		{"selected without ids", Request{Mode: ModeSelected}, apperrors.ErrInvalidInput},
		{"related without threshold", Request{Mode: ModeRelated}, apperrors.ErrInvalidThreshold},
		{"related with bad threshold", Request{Mode: ModeRelated, Threshold: ptr(1.5)}, apperrors.ErrInvalidThreshold},
		{"nothing new", Request{Mode: ModeNew, Since: ptr(base.Add(24 * time.Hour))}, apperrors.ErrNoteNotFound},
		{"unknown selection", Request{Mode: ModeSelected, SelectedIDs: []string{"zz"}}, apperrors.ErrNoteNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(corpus, tt.req, noRelated(t))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFormatSequential(t *testing.T) {
	got := Format(corpus[:2], false)
	assert.Equal(t, "# Roadmap\nship it\n\n# Standup\nnotes", got)
	assert.Equal(t, "", Format(nil, false))
}

func TestFormatGroupedByTags(t *testing.T) {
	want := "## Tag: work\n\n" +
		"### Roadmap\nship it\n\n" +
		"### Standup\nnotes\n\n" +
		"## Tag: ideas\n\n" +
		"### Roadmap\nship it\n\n" +
		"## Untagged Notes\n\n" +
		"### Loose\nthought\n\n"
	assert.Equal(t, want, Format(corpus, true))
}

func TestFormatGroupedWithoutUntagged(t *testing.T) {
	got := Format(corpus[1:2], true)
	assert.Equal(t, "## Tag: work\n\n### Standup\nnotes\n\n", got)
}
