package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"no checks", nil, StatusUp},
		{"all up", map[string]Check{"engine": PingCheck(up, true)}, StatusUp},
		{"optional down", map[string]Check{
			"engine": PingCheck(up, true),
			"redis":  PingCheck(down, false),
		}, StatusDegraded},
		{"critical down", map[string]Check{
			"postgres": PingCheck(down, true),
			"redis":    PingCheck(down, false),
		}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker(Options{})
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker(Options{})
	c.Register("redis", PingCheck(down, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "connection refused", report.Components["redis"].Message)

	c.Register("postgres", PingCheck(down, true))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(Options{}).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker(Options{CheckTimeout: 20 * time.Millisecond})
	c.Register("stuck", func(ctx context.Context) ComponentHealth {
		time.Sleep(time.Second)
		return ComponentHealth{Status: StatusUp}
	})
	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["stuck"].Message, "timed out")
}

func TestReportCaching(t *testing.T) {
	var calls atomic.Int32
	now := time.Unix(1000, 0)
	c := NewChecker(Options{CacheFor: time.Minute})
	c.now = func() time.Time { return now }
	c.Register("redis", PingCheck(func(context.Context) error {
		calls.Add(1)
		return nil
	}, false))

	c.Run(context.Background())
	c.Run(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(2 * time.Minute)
	c.Run(context.Background())
	assert.Equal(t, int32(2), calls.Load())

	c.Register("kafka", PingCheck(up, false))
	report := c.Run(context.Background())
	assert.Equal(t, int32(3), calls.Load(), "registering drops the cached report")
	assert.Len(t, report.Components, 2)
}

func TestBreakerCheck(t *testing.T) {
	state := "closed"
	check := BreakerCheck(func() string { return state })
	assert.Equal(t, StatusUp, check(context.Background()).Status)
	state = "open"
	got := check(context.Background())
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "circuit breaker open", got.Message)
}
