package generate

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencyWindow is how many recent model calls the latency figures cover.
const latencyWindow = 256

// Stats accumulates request counters and a ring of recent model latencies.
type Stats struct {
	mu        sync.Mutex
	requests  int
	errors    int
	fallbacks int
	latencies []float64 // milliseconds, ring buffer
	next      int
}

func newStats() *Stats {
	return &Stats{latencies: make([]float64, 0, latencyWindow)}
}

func (s *Stats) recordRequest(failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if failed {
		s.errors++
	}
}

func (s *Stats) recordFallback() {
	s.mu.Lock()
	s.fallbacks++
	s.mu.Unlock()
}

func (s *Stats) recordLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.latencies) < latencyWindow {
		s.latencies = append(s.latencies, ms)
		return
	}
	s.latencies[s.next] = ms
	s.next = (s.next + 1) % latencyWindow
}

// latencySummary returns mean, median and 95th percentile in milliseconds.
func (s *Stats) latencySummary() (mean, p50, p95 float64) {
	s.mu.Lock()
	sorted := append([]float64(nil), s.latencies...)
	s.mu.Unlock()
	if len(sorted) == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return mean, p50, p95
}

func (s *Stats) counts() (requests, errors, fallbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests, s.errors, s.fallbacks
}
