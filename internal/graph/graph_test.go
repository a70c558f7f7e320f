package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
)

var (
	work  = notes.Tag{ID: "t1", Name: "work", Color: "#00f"}
	ideas = notes.Tag{ID: "t2", Name: "ideas"}

	sampleNotes = []notes.Note{
		{ID: "a", Title: "Roadmap", Tags: []notes.Tag{work, ideas}},
		{ID: "b", Title: "Standup", Tags: []notes.Tag{work}},
		{ID: "c", Title: "Loose thought"},
	}
	sampleRels = []relationship.Relationship{
		{SourceID: "a", TargetID: "b", Strength: 0.4},
		{SourceID: "a", TargetID: "zz", Strength: 0.9},
	}
)

func TestBuildWithoutContentEdges(t *testing.T) {
	g := Build(sampleNotes, []notes.Tag{work, ideas}, sampleRels, Options{})

	require.Len(t, g.Nodes, 5)
	assert.Equal(t, Node{ID: "tag-t1", Type: NodeTag, Name: "work", Color: "#00f"}, g.Nodes[0])
	assert.Equal(t, Node{ID: "note-a", Type: NodeNote, Name: "Roadmap"}, g.Nodes[2])

	assert.Equal(t, []Edge{
		{Source: "note-a", Target: "tag-t1", Type: EdgeTag},
		{Source: "note-a", Target: "tag-t2", Type: EdgeTag},
		{Source: "note-b", Target: "tag-t1", Type: EdgeTag},
	}, g.Edges)
}

func TestBuildWithContentEdges(t *testing.T) {
	g := Build(sampleNotes, []notes.Tag{work}, sampleRels, Options{ContentEdges: true})

	// The ideas tag is not listed, so its membership edge is dropped; the
	// relationship to an unknown note is dropped too.
	assert.Equal(t, []Edge{
		{Source: "note-a", Target: "tag-t1", Type: EdgeTag},
		{Source: "note-b", Target: "tag-t1", Type: EdgeTag},
		{Source: "note-a", Target: "note-b", Type: EdgeContent, Strength: ptr(0.4)},
	}, g.Edges)
}

func TestContentEdgeKeepsZeroStrength(t *testing.T) {
	rels := []relationship.Relationship{{SourceID: "a", TargetID: "b", Strength: 0}}
	g := Build(sampleNotes, []notes.Tag{work}, rels, Options{ContentEdges: true})

	data, err := json.Marshal(g.Edges)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"source":"note-a","target":"note-b","type":"content","strength":0}`)
	assert.Contains(t, string(data), `{"source":"note-a","target":"tag-t1","type":"tag"}`)
}

func ptr(v float64) *float64 { return &v }

func TestBuildEmpty(t *testing.T) {
	g := Build(nil, nil, nil, Options{ContentEdges: true})
	assert.NotNil(t, g.Nodes)
	assert.NotNil(t, g.Edges)
	assert.Empty(t, g.Nodes)
}
