// Package analytics records how the similarity graph is queried and ships
// the events to Kafka in batches.
package analytics

import "time"

type EventType string

const (
	EventSimilarities  EventType = "similarities"
	EventRelationships EventType = "relationships"
	EventRelated       EventType = "related"
	EventGraph         EventType = "graph"
	EventContext       EventType = "context"
	EventInvalidate    EventType = "invalidate"
)

// QueryEvent describes one similarity query.
type QueryEvent struct {
	Type          EventType `json:"type"`
	Documents     int       `json:"documents"`
	Threshold     *float64  `json:"threshold,omitempty"`
	Relationships int       `json:"relationships"`
	Returned      int       `json:"returned"`
	CacheHit      bool      `json:"cache_hit"`
	LatencyMs     int64     `json:"latency_ms"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id,omitempty"`
}

// Tracker accepts events for asynchronous delivery.
type Tracker interface {
	Track(key string, value any)
}

// Noop discards every event. It is used when Kafka is not configured.
type Noop struct{}

func (Noop) Track(string, any) {}
