// Package graph assembles the constellation graph: tags and notes as nodes,
// tag membership and content similarity as edges. Layout and rendering
// belong to the client.
package graph

import (
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
)

type NodeType string

const (
	NodeTag  NodeType = "tag"
	NodeNote NodeType = "note"
)

type EdgeType string

const (
	EdgeTag     EdgeType = "tag"
	EdgeContent EdgeType = "content"
)

type Node struct {
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Name  string   `json:"name"`
	Color string   `json:"color,omitempty"`
}

type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     EdgeType `json:"type"`
	// Strength is set on content edges only, including a score of 0.
	Strength *float64 `json:"strength,omitempty"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type Options struct {
	// ContentEdges adds one edge per relationship.
	ContentEdges bool
}

// TagNodeID and NoteNodeID namespace node IDs so a tag and a note sharing an
// ID stay distinct.
func TagNodeID(id string) string  { return "tag-" + id }
func NoteNodeID(id string) string { return "note-" + id }

// Build emits tag nodes in tags order, then note nodes in notes order, then
// tag edges, then content edges in relationship order. Edges to tags missing
// from tags and relationships naming unknown notes are dropped.
func Build(ns []notes.Note, tags []notes.Tag, rels []relationship.Relationship, opts Options) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(tags)+len(ns)),
		Edges: []Edge{},
	}
	knownTags := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if _, dup := knownTags[t.ID]; dup {
			continue
		}
		knownTags[t.ID] = struct{}{}
		g.Nodes = append(g.Nodes, Node{ID: TagNodeID(t.ID), Type: NodeTag, Name: t.Name, Color: t.Color})
	}
	knownNotes := make(map[string]struct{}, len(ns))
	for _, n := range ns {
		knownNotes[n.ID] = struct{}{}
		g.Nodes = append(g.Nodes, Node{ID: NoteNodeID(n.ID), Type: NodeNote, Name: n.Title})
	}
	for _, n := range ns {
		for _, t := range n.Tags {
			if _, ok := knownTags[t.ID]; !ok {
				continue
			}
			g.Edges = append(g.Edges, Edge{Source: NoteNodeID(n.ID), Target: TagNodeID(t.ID), Type: EdgeTag})
		}
	}
	if opts.ContentEdges {
		for _, r := range rels {
			_, okS := knownNotes[r.SourceID]
			_, okT := knownNotes[r.TargetID]
			if !okS || !okT {
				continue
			}
			strength := r.Strength
			g.Edges = append(g.Edges, Edge{
				Source:   NoteNodeID(r.SourceID),
				Target:   NoteNodeID(r.TargetID),
				Type:     EdgeContent,
				Strength: &strength,
			})
		}
	}
	return g
}
