package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

const APIKeyHeader = "X-API-Key"

type clientKeyCtx struct{}

// authenticatedClient returns a stable, non-secret name for the API key
// that authenticated the request, or "" when none did.
func authenticatedClient(ctx context.Context) string {
	id, _ := ctx.Value(clientKeyCtx{}).(string)
	return id
}

// APIKeyAuth requires one of keys on every request except health probes.
// The key is read from "Authorization: Bearer", then X-API-Key. Only SHA-256
// digests are kept in memory.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := extractAPIKey(r)
			if key == "" {
				writeAuthError(w, "missing api key")
				return
			}
			digest := sha256.Sum256([]byte(key))
			if !keyMatches(digests, digest) {
				writeAuthError(w, "invalid api key")
				return
			}
			ctx := context.WithValue(r.Context(), clientKeyCtx{}, "key:"+hex.EncodeToString(digest[:8]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// keyMatches compares against every digest so timing does not reveal which
// one matched.
func keyMatches(digests [][sha256.Size]byte, d [sha256.Size]byte) bool {
	match := 0
	for i := range digests {
		match |= subtle.ConstantTimeCompare(digests[i][:], d[:])
	}
	return match == 1
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get(APIKeyHeader)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}
