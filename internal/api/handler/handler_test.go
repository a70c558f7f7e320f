package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/graph"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/relationship"
)

const scenarioBody = `{"documents": [
	{"id": "A", "text": "machine learning models"},
	{"id": "B", "text": "deep learning neural networks"},
	{"id": "C", "text": "cooking pasta recipes"}
]`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := notes.NewMemoryStore(
		notes.Note{ID: "c", Title: "cooking", Content: "pasta recipes", Tags: []notes.Tag{{ID: "t1", Name: "food"}}},
		notes.Note{ID: "d", Title: "pasta", Content: "sauce recipes"},
		notes.Note{ID: "e", Title: "deep", Content: "learning networks"},
	)
	svc := service.New(store, similarity.NewEngine(similarity.Options{}), service.Options{})
	mux := http.NewServeMux()
	New(svc).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]json.RawMessage{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestSimilarities(t *testing.T) {
	srv := newServer(t)
	resp, body := do(t, srv, http.MethodPost, "/api/v1/similarities", scenarioBody+`}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m map[string]map[string]float64
	require.NoError(t, json.Unmarshal(body["similarities"], &m))
	assert.Greater(t, m["A"]["B"], m["A"]["C"])
	_, self := m["A"]["A"]
	assert.False(t, self)
}

func TestRelationships(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/relationships", scenarioBody+`, "threshold": 0.01}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rels []relationship.Relationship
	require.NoError(t, json.Unmarshal(body["relationships"], &rels))
	require.Len(t, rels, 1)
	assert.Equal(t, "A", rels[0].SourceID)

	resp, body = do(t, srv, http.MethodPost, "/api/v1/relationships", scenarioBody+`, "threshold": 1.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["error"]), "threshold")

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/relationships", scenarioBody+`}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelated(t *testing.T) {
	srv := newServer(t)
	resp, body := do(t, srv, http.MethodPost, "/api/v1/related", scenarioBody+`, "seedIds": ["A"], "threshold": 0.01}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `["A","B"]`, string(body["ids"]))
}

func TestBadBody(t *testing.T) {
	srv := newServer(t)
	resp, _ := do(t, srv, http.MethodPost, "/api/v1/similarities", `{"documents": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodPost, "/api/v1/similarities", `{"docs": []}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotesLifecycle(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodPut, "/api/v1/notes/f", `{"title": "pasta", "content": "carbonara recipes"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"f"`, string(body["id"]))

	resp, body = do(t, srv, http.MethodPut, "/api/v1/notes/g", `{"content": "", "tags": [{"id": "x"}]}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body["fields"]), "tags[0].name")

	resp, body = do(t, srv, http.MethodGet, "/api/v1/notes", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ns []notes.Note
	require.NoError(t, json.Unmarshal(body["notes"], &ns))
	assert.Len(t, ns, 4)

	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/notes/f", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodDelete, "/api/v1/notes/f", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGraph(t *testing.T) {
	srv := newServer(t)

	resp, _ := do(t, srv, http.MethodGet, "/api/v1/graph", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/graph?threshold=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/graph?threshold=0.1&content=false", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var edges []graph.Edge
	require.NoError(t, json.Unmarshal(body["edges"], &edges))
	assert.Equal(t, []graph.Edge{{Source: "note-c", Target: "tag-t1", Type: graph.EdgeTag}}, edges)

	resp, body = do(t, srv, http.MethodGet, "/api/v1/graph?threshold=0.1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body["edges"], &edges))
	assert.Len(t, edges, 2)
}

func TestRelatedNotes(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodGet, "/api/v1/notes/c/related?threshold=0.1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var related []service.RelatedNote
	require.NoError(t, json.Unmarshal(body["related"], &related))
	require.Len(t, related, 1)
	assert.Equal(t, "d", related[0].Note.ID)

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/notes/zz/related?threshold=0.1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContext(t *testing.T) {
	srv := newServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/v1/context", `{"mode": "selected", "selectedIds": ["d"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `"# pasta\nsauce recipes"`, string(body["content"]))

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/context", `{"mode": "related", "selectedIds": ["d"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCacheEndpoints(t *testing.T) {
	srv := newServer(t)
	do(t, srv, http.MethodGet, "/api/v1/graph?threshold=0.5", "")
	do(t, srv, http.MethodGet, "/api/v1/graph?threshold=0.5", "")

	resp, body := do(t, srv, http.MethodGet, "/api/v1/cache/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"hits": 1, "misses": 1}`, string(body["corpus"]))
	_, shared := body["shared"]
	assert.False(t, shared)

	resp, _ = do(t, srv, http.MethodPost, "/api/v1/cache/invalidate", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
