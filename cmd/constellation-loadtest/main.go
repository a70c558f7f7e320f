// Command constellation-loadtest seeds a running constellation service with
// synthetic notes and drives a mix of similarity queries against it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Notes       int
	Threshold   float64
	Seed        uint64
}

// Stats is shared by every worker.
type Stats struct {
	total     atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64

	mu        sync.Mutex
	latencies map[string][]time.Duration
	statuses  map[int]int64
}

func NewStats() *Stats {
	return &Stats{
		latencies: make(map[string][]time.Duration),
		statuses:  make(map[int]int64),
	}
}

// Record counts one request of the named scenario. status is 0 for
// transport errors.
func (s *Stats) Record(scenario string, d time.Duration, status int) {
	s.total.Add(1)
	if status >= 200 && status < 300 {
		s.successes.Add(1)
	} else {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.statuses[status]++
	if status != 0 {
		s.latencies[scenario] = append(s.latencies[scenario], d)
	}
	s.mu.Unlock()
}

var vocabulary = []string{
	"graph", "vector", "cosine", "cache", "kafka", "redis", "postgres",
	"pasta", "sauce", "garden", "tomato", "basil", "travel", "train",
	"mountain", "river", "budget", "invoice", "meeting", "roadmap",
	"python", "golang", "compiler", "kernel", "network", "latency",
	"novel", "poetry", "chapter", "history", "museum", "painting",
}

// syntheticNotes draws n notes from a fixed vocabulary so that related
// notes actually share terms.
func syntheticNotes(n int, rng *rand.Rand) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		words := make([]string, 8+rng.IntN(24))
		// Each note leans on one slice of the vocabulary.
		base := rng.IntN(len(vocabulary))
		for j := range words {
			words[j] = vocabulary[(base+rng.IntN(6))%len(vocabulary)]
		}
		out[i] = map[string]any{
			"id":      fmt.Sprintf("load-%04d", i),
			"title":   strings.Join(words[:2], " "),
			"content": strings.Join(words[2:], " "),
		}
	}
	return out
}

type scenario struct {
	name   string
	weight int
	build  func(cfg Config, rng *rand.Rand, notes []map[string]any) (*http.Request, error)
}

var scenarios = []scenario{
	{name: "graph", weight: 3, build: func(cfg Config, _ *rand.Rand, _ []map[string]any) (*http.Request, error) {
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/graph?threshold=%g", cfg.BaseURL, cfg.Threshold), nil)
	}},
	{name: "related", weight: 4, build: func(cfg Config, rng *rand.Rand, notes []map[string]any) (*http.Request, error) {
		id := notes[rng.IntN(len(notes))]["id"]
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/notes/%s/related?threshold=%g", cfg.BaseURL, id, cfg.Threshold), nil)
	}},
	{name: "adhoc_relationships", weight: 2, build: func(cfg Config, rng *rand.Rand, notes []map[string]any) (*http.Request, error) {
		docs := make([]map[string]string, 0, 20)
		for _, n := range notes[:min(20, len(notes))] {
			docs = append(docs, map[string]string{
				"id":   n["id"].(string),
				"text": n["title"].(string) + " " + n["content"].(string),
			})
		}
		rng.Shuffle(len(docs), func(i, j int) { docs[i], docs[j] = docs[j], docs[i] })
		body, err := json.Marshal(map[string]any{"documents": docs, "threshold": cfg.Threshold})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPost, cfg.BaseURL+"/api/v1/relationships", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}},
	{name: "touch_note", weight: 1, build: func(cfg Config, rng *rand.Rand, notes []map[string]any) (*http.Request, error) {
		n := notes[rng.IntN(len(notes))]
		body, err := json.Marshal(map[string]any{
			"title":   n["title"],
			"content": fmt.Sprintf("%s %s", n["content"], vocabulary[rng.IntN(len(vocabulary))]),
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/v1/notes/%s", cfg.BaseURL, n["id"]), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}},
}

func pickScenario(rng *rand.Rand) scenario {
	total := 0
	for _, s := range scenarios {
		total += s.weight
	}
	r := rng.IntN(total)
	for _, s := range scenarios {
		if r < s.weight {
			return s
		}
		r -= s.weight
	}
	return scenarios[0]
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the constellation service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.Notes, "notes", 200, "number of synthetic notes to seed")
	flag.Float64Var(&cfg.Threshold, "threshold", 0.3, "similarity threshold used by queries")
	flag.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	fmt.Println("=== Note Constellation Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Notes:       %d\n", cfg.Notes)
	fmt.Println()

	client := newClient(cfg.Concurrency)
	notes := syntheticNotes(cfg.Notes, rand.New(rand.NewPCG(cfg.Seed, 0)))
	if err := seed(context.Background(), client, cfg.BaseURL, notes); err != nil {
		fmt.Fprintf(os.Stderr, "seeding failed: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	stats := run(ctx, client, cfg, notes)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func seed(ctx context.Context, client *http.Client, baseURL string, notes []map[string]any) error {
	for _, n := range notes {
		body, err := json.Marshal(map[string]any{"title": n["title"], "content": n["content"]})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut,
			fmt.Sprintf("%s/api/v1/notes/%s", baseURL, n["id"]), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("upserting %s: status %d", n["id"], resp.StatusCode)
		}
	}
	return nil
}

func run(ctx context.Context, client *http.Client, cfg Config, notes []map[string]any) *Stats {
	stats := NewStats()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, worker+1))
			for ctx.Err() == nil {
				sc := pickScenario(rng)
				req, err := sc.build(cfg, rng, notes)
				if err != nil {
					stats.Record(sc.name, 0, 0)
					continue
				}
				start := time.Now()
				resp, err := client.Do(req.WithContext(ctx))
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						stats.Record(sc.name, elapsed, 0)
					}
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.Record(sc.name, elapsed, resp.StatusCode)
			}
		}(uint64(w))
	}
	wg.Wait()
	return stats
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.total.Load()
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", stats.successes.Load())
	fmt.Fprintf(w, "Failed:          %d\n", stats.failures.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(stats.failures.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	defer stats.mu.Unlock()

	names := make([]string, 0, len(stats.latencies))
	for name := range stats.latencies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lat := append([]time.Duration(nil), stats.latencies[name]...)
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		fmt.Fprintf(w, "\n=== %s (%d) ===\n", name, len(lat))
		fmt.Fprintf(w, "Min:    %s\n", lat[0])
		fmt.Fprintf(w, "P50:    %s\n", percentile(lat, 50))
		fmt.Fprintf(w, "P95:    %s\n", percentile(lat, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(lat, 99))
		fmt.Fprintf(w, "Max:    %s\n", lat[len(lat)-1])
	}

	fmt.Fprintln(w, "\n=== Status Codes ===")
	codes := make([]int, 0, len(stats.statuses))
	for code := range stats.statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statuses[code])
	}
	if total == 0 {
		fmt.Fprintln(w, "\nWARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
