// Package handler exposes the constellation service over HTTP/JSON.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/contextsel"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/notes"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/internal/similarity/corpus"
	apperrors "github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
)

const maxBodyBytes = 10 << 20

type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service) *Handler {
	return &Handler{
		svc:    svc,
		logger: slog.Default().With("component", "api-handler"),
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/similarities", h.Similarities)
	mux.HandleFunc("POST /api/v1/relationships", h.Relationships)
	mux.HandleFunc("POST /api/v1/related", h.Related)
	mux.HandleFunc("GET /api/v1/notes", h.ListNotes)
	mux.HandleFunc("PUT /api/v1/notes/{id}", h.UpsertNote)
	mux.HandleFunc("DELETE /api/v1/notes/{id}", h.DeleteNote)
	mux.HandleFunc("GET /api/v1/notes/{id}/related", h.RelatedNotes)
	mux.HandleFunc("GET /api/v1/graph", h.Graph)
	mux.HandleFunc("POST /api/v1/context", h.Context)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type documentsRequest struct {
	Documents []corpus.Document `json:"documents"`
	Threshold *float64          `json:"threshold"`
	SeedIDs   []string          `json:"seedIds"`
}

func (h *Handler) Similarities(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	m, err := h.svc.Similarities(r.Context(), req.Documents)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"similarities": m})
}

func (h *Handler) Relationships(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Threshold == nil {
		h.fail(w, r, errMissingThreshold)
		return
	}
	rels, err := h.svc.Relationships(r.Context(), req.Documents, *req.Threshold)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	var req documentsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Threshold == nil {
		h.fail(w, r, errMissingThreshold)
		return
	}
	ids, err := h.svc.RelatedDocuments(r.Context(), req.Documents, req.SeedIDs, *req.Threshold)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	ns, err := h.svc.ListNotes(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"notes": ns})
}

func (h *Handler) UpsertNote(w http.ResponseWriter, r *http.Request) {
	r, id := noteRequest(r)
	var req notes.UpsertRequest
	if !h.decode(w, r, &req) {
		return
	}
	n, err := h.svc.UpsertNote(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	r, id := noteRequest(r)
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RelatedNotes(w http.ResponseWriter, r *http.Request) {
	r, id := noteRequest(r)
	threshold, err := queryThreshold(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	related, err := h.svc.RelatedNotes(r.Context(), id, threshold)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"related": related})
}

func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryThreshold(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	content := true
	if v := r.URL.Query().Get("content"); v != "" {
		content, err = strconv.ParseBool(v)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: content must be a boolean", apperrors.ErrInvalidInput))
			return
		}
	}
	g, err := h.svc.Graph(r.Context(), threshold, content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, g)
}

func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	var req contextsel.Request
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.Context(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.svc.CacheStats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.InvalidateAll(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

var errMissingThreshold = fmt.Errorf("%w: threshold is required", apperrors.ErrInvalidThreshold)

func queryThreshold(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return 0, errMissingThreshold
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", apperrors.ErrInvalidThreshold, raw)
	}
	return t, nil
}

// decode reads a JSON body into dst, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// noteRequest tags the request's log context with the note ID from the path.
func noteRequest(r *http.Request) (*http.Request, string) {
	id := r.PathValue("id")
	return r.WithContext(logger.WithAttrs(r.Context(), "note_id", id)), id
}

// fail maps err to a status code. Server-side failures are logged and
// reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"error", err,
		)
		message := "internal error"
		if status == http.StatusServiceUnavailable {
			message = "dependency unavailable"
		}
		h.writeError(w, status, message)
		return
	}
	var verr *notes.ValidationError
	if errors.As(err, &verr) {
		h.writeJSON(w, status, map[string]any{"error": "validation failed", "fields": verr.Fields})
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
