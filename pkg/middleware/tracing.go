package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/tracing"
)

// Tracing opens a root span per request. Spans started further down the
// handler chain attach to it, and the tree is logged when the request ends.
// It must run inside RequestID so the trace ID matches the request ID.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.Start(r.Context(), r.Method+" "+normalizePath(r.URL.Path))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttr("status", sw.status)
		span.End()
	})
}
