package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: n1", ErrNoteNotFound), http.StatusNotFound},
		{"invalid input", fmt.Errorf("decode: %w", ErrInvalidInput), http.StatusBadRequest},
		{"invalid threshold", ErrInvalidThreshold, http.StatusBadRequest},
		{"cache unavailable", ErrCacheUnavailable, http.StatusServiceUnavailable},
		{"timeout", fmt.Errorf("redis get: %w", ErrTimeout), http.StatusServiceUnavailable},
		{"invariant", Invariantf("score %v", 1.5), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrInvalidInput, http.StatusRequestEntityTooLarge, "corpus too large"), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := Newf(ErrNoteNotFound, http.StatusNotFound, "note %s", "n1")
	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.Equal(t, "note not found: note n1", err.Error())

	inv := Invariantf("similarity %v", 2.0)
	assert.ErrorIs(t, inv, ErrInvariantViolation)
	assert.Contains(t, inv.Error(), "similarity 2")
}
