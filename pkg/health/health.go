// Package health runs dependency probes for the liveness and readiness
// endpoints. Optional dependencies (the shared Redis cache, Kafka) register
// as non-critical so an outage degrades the service instead of taking it
// out of rotation; the similarity engine itself has no external dependency.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes one dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregate of every registered check. Status is the worst
// component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Uptime     string                     `json:"uptime"`
	CheckedAt  time.Time                  `json:"checkedAt"`
}

// Options tunes a Checker. Zero values pick the defaults.
type Options struct {
	// CheckTimeout bounds each probe. Default 2s.
	CheckTimeout time.Duration
	// CacheFor reuses the last report for this long so frequent probes do
	// not hammer dependencies. Zero disables caching.
	CacheFor time.Duration
}

type Checker struct {
	opts    Options
	started time.Time
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	checks map[string]Check

	cacheMu sync.Mutex
	last    *Report
}

func NewChecker(opts Options) *Checker {
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = 2 * time.Second
	}
	return &Checker{
		opts:    opts,
		started: time.Now(),
		now:     time.Now,
		checks:  make(map[string]Check),
		logger:  slog.Default().With("component", "health"),
	}
}

// Register adds or replaces a named check and drops any cached report.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	c.checks[name] = check
	c.mu.Unlock()
	c.cacheMu.Lock()
	c.last = nil
	c.cacheMu.Unlock()
}

// Run probes every dependency in parallel, each under CheckTimeout.
func (c *Checker) Run(ctx context.Context) Report {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	now := c.now()
	if c.last != nil && c.opts.CacheFor > 0 && now.Sub(c.last.CheckedAt) < c.opts.CacheFor {
		return *c.last
	}

	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.probe(ctx, check)
			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:     aggregate(results),
		Components: results,
		Uptime:     now.Sub(c.started).Round(time.Second).String(),
		CheckedAt:  now,
	}
	c.last = &report
	return report
}

func (c *Checker) probe(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CheckTimeout)
	defer cancel()
	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()
	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check timed out after %s", c.opts.CheckTimeout)}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

func aggregate(results map[string]ComponentHealth) Status {
	status := StatusUp
	for _, r := range results {
		switch r.Status {
		case StatusDown:
			return StatusDown
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// PingCheck adapts a ping function. A failing critical dependency reports
// down; a failing optional one reports degraded.
func PingCheck(ping func(ctx context.Context) error, critical bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: failed(critical), Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// BreakerCheck reports degraded while the named circuit breaker is not
// closed, so readiness shows a dependency that is being skipped.
func BreakerCheck(state func() string) Check {
	return func(context.Context) ComponentHealth {
		switch s := state(); s {
		case "closed":
			return ComponentHealth{Status: StatusUp}
		default:
			return ComponentHealth{Status: StatusDegraded, Message: "circuit breaker " + s}
		}
	}
}

func failed(critical bool) Status {
	if critical {
		return StatusDown
	}
	return StatusDegraded
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": c.now().Sub(c.started).Round(time.Second).String(),
		})
	}
}

// ReadyHandler answers 503 only when a critical dependency is down. A
// degraded report still answers 200 because the service can compute
// similarities without its optional dependencies.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		code := http.StatusOK
		if report.Status == StatusDown {
			code = http.StatusServiceUnavailable
		}
		if report.Status != StatusUp {
			c.logger.Warn("readiness check not up", "status", report.Status)
		}
		writeJSON(w, code, report)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
