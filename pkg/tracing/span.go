// Package tracing records in-process span trees for a request and logs them
// through slog once the root span ends. A span's trace ID is the request ID
// when one is in the context.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Note-Constellation/pkg/logger"
)

type contextKey struct{}

// Span is one timed operation. Children are appended concurrently, so all
// access goes through the mutex.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	parent   *Span
	children []*Span
	attrs    []any
	err      error
	now      func() time.Time
}

// Start opens a span under the span already in ctx, or a new root span when
// there is none.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	parent := FromContext(ctx)
	span := &Span{Name: name, now: time.Now}
	if parent != nil {
		span.TraceID = parent.TraceID
		span.parent = parent
		span.now = parent.now
		parent.mu.Lock()
		parent.children = append(parent.children, span)
		parent.mu.Unlock()
	} else {
		span.TraceID = logger.RequestIDFromContext(ctx)
		if span.TraceID == "" {
			span.TraceID = uuid.NewString()
		}
	}
	span.Start = span.now()
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the innermost open span, or nil.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// SetAttr attaches a key/value pair logged with the span. A nil span is a
// no-op so callers never need to check.
func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Fail marks the span as failed.
func (s *Span) Fail(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// End closes the span. Ending a root span logs the whole tree at debug
// level.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = s.now().Sub(s.Start)
	s.mu.Unlock()
	if s.parent == nil {
		s.Log(slog.Default())
	}
}

// Children returns a copy of the direct children.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// Attr returns the last value set for key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.attrs) - 2; i >= 0; i -= 2 {
		if s.attrs[i] == key {
			return s.attrs[i+1], true
		}
	}
	return nil, false
}

// Log writes one record per span, depth first.
func (s *Span) Log(l *slog.Logger) {
	s.log(l, 0)
}

func (s *Span) log(l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	attrs = append(attrs, s.attrs...)
	if s.err != nil {
		attrs = append(attrs, "error", s.err.Error())
	}
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()

	l.Debug("span", attrs...)
	for _, child := range children {
		child.log(l, depth+1)
	}
}
