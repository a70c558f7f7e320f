package middleware

import (
	"fmt"
	"net"
	"net/netip"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
)

// Limiter keeps one token bucket per client. Each client gets limit tokens
// per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

type clientBucket struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		clients: make(map[string]*clientBucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	if l.limit <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		c = &clientBucket{bucket: rate.NewLimiter(every, l.limit)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.bucket.AllowN(now, 1)
}

// Prune drops clients idle for a full window; their buckets would be full
// again anyway.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// RateLimit rejects requests from clients that ran out of tokens with 429.
// Health probes are never limited. Clients authenticated by APIKeyAuth are
// keyed by their key; others by socket peer address. X-Forwarded-For is
// only read when the peer is one of trusted.
func RateLimit(l *Limiter, trusted []netip.Prefix) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(l.window.Seconds()))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}
			client := clientKey(r, trusted)
			if !l.Allow(client) {
				logger.FromContext(r.Context()).Warn("rate limit exceeded", "client", client, "path", r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseTrustedProxies accepts plain addresses and CIDR prefixes.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func clientKey(r *http.Request, trusted []netip.Prefix) string {
	if id := authenticatedClient(r.Context()); id != "" {
		return id
	}
	return clientIP(r, trusted)
}

// clientIP returns the socket peer, or, when the peer is a trusted proxy,
// the nearest untrusted hop in X-Forwarded-For.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !isTrusted(peer, trusted) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !isTrusted(hop, trusted) {
			return hop.String()
		}
	}
	return host
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
