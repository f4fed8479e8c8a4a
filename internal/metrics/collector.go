// Package metrics aggregates per-adapter request, latency and feedback
// counters with streaming percentile estimation.
package metrics

import (
	"sort"
	"sync"
	"time"

	"adapterd/internal/clock"
)

// Metric names accepted by TopAdapters.
const (
	MetricRequests    = "requests"
	MetricSuccessRate = "success_rate"
	MetricAvgLatency  = "avg_latency"
	MetricP95Latency  = "p95_latency"
	MetricRating      = "rating"
)

// invalidMetricError signals an unknown ranking metric.
type invalidMetricError struct{ metric string }

func (e invalidMetricError) Error() string { return "unknown metric: " + e.metric }

// IsInvalidMetric reports whether err indicates an unknown metric name.
func IsInvalidMetric(err error) bool {
	_, ok := err.(invalidMetricError)
	return ok
}

// AdapterSnapshot is a point-in-time aggregate for one adapter.
type AdapterSnapshot struct {
	AdapterID    string  `json:"adapter_id"`
	Requests     uint64  `json:"requests"`
	Successes    uint64  `json:"successes"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P50LatencyMS float64 `json:"p50_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	P99LatencyMS float64 `json:"p99_latency_ms"`
	RatingCount  uint64  `json:"rating_count"`
	AvgRating    float64 `json:"avg_rating,omitempty"`
	// Request counts by task type.
	Tasks map[string]uint64 `json:"tasks,omitempty"`
	// Window start (first observation) in unix seconds.
	WindowStartUnix int64 `json:"window_start_unix"`
}

type adapterStats struct {
	mu         sync.Mutex
	firstSeen  time.Time
	requests   uint64
	successes  uint64
	latencySum float64
	p50        *p2
	p95        *p2
	p99        *p2
	ratingSum  float64
	ratingN    uint64
	tasks      map[string]uint64
}

func newAdapterStats(now time.Time) *adapterStats {
	return &adapterStats{
		firstSeen: now,
		p50:       newP2(0.50),
		p95:       newP2(0.95),
		p99:       newP2(0.99),
		tasks:     make(map[string]uint64),
	}
}

// Collector aggregates metrics per adapter. Updates are O(1) amortized: a
// counter bump plus three P² marker adjustments, no history kept.
type Collector struct {
	mu       sync.RWMutex
	adapters map[string]*adapterStats
	clk      clock.Clock
}

// NewCollector constructs an empty Collector. clk may be nil.
func NewCollector(clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.Real()
	}
	return &Collector{adapters: make(map[string]*adapterStats), clk: clk}
}

func (c *Collector) stats(adapterID string) *adapterStats {
	c.mu.RLock()
	s, ok := c.adapters[adapterID]
	c.mu.RUnlock()
	if ok {
		return s
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.adapters[adapterID]; ok {
		return s
	}
	s = newAdapterStats(c.clk.Now())
	c.adapters[adapterID] = s
	return s
}

// RecordRequest folds one served request into the adapter's aggregates.
func (c *Collector) RecordRequest(adapterID string, latencyMS float64, success bool, taskType string) {
	s := c.stats(adapterID)
	s.mu.Lock()
	s.requests++
	if success {
		s.successes++
	}
	s.latencySum += latencyMS
	s.p50.Observe(latencyMS)
	s.p95.Observe(latencyMS)
	s.p99.Observe(latencyMS)
	if taskType != "" {
		s.tasks[taskType]++
	}
	s.mu.Unlock()
}

// RecordFeedback folds one user rating into the adapter's aggregates.
func (c *Collector) RecordFeedback(adapterID string, rating float64, taskType string) {
	s := c.stats(adapterID)
	s.mu.Lock()
	s.ratingSum += rating
	s.ratingN++
	s.mu.Unlock()
}

// Snapshot returns the adapter's aggregate; ok is false for an adapter with
// no recorded traffic.
func (c *Collector) Snapshot(adapterID string) (AdapterSnapshot, bool) {
	c.mu.RLock()
	s, ok := c.adapters[adapterID]
	c.mu.RUnlock()
	if !ok {
		return AdapterSnapshot{AdapterID: adapterID}, false
	}
	return s.snapshot(adapterID), true
}

func (s *adapterStats) snapshot(id string) AdapterSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := AdapterSnapshot{
		AdapterID:       id,
		Requests:        s.requests,
		Successes:       s.successes,
		P50LatencyMS:    s.p50.Value(),
		P95LatencyMS:    s.p95.Value(),
		P99LatencyMS:    s.p99.Value(),
		RatingCount:     s.ratingN,
		WindowStartUnix: s.firstSeen.Unix(),
	}
	if s.requests > 0 {
		out.SuccessRate = float64(s.successes) / float64(s.requests)
		out.AvgLatencyMS = s.latencySum / float64(s.requests)
	}
	if s.ratingN > 0 {
		out.AvgRating = s.ratingSum / float64(s.ratingN)
	}
	if len(s.tasks) > 0 {
		out.Tasks = make(map[string]uint64, len(s.tasks))
		for k, v := range s.tasks {
			out.Tasks[k] = v
		}
	}
	return out
}

// TopAdapters returns up to limit adapters sorted by the given metric,
// descending (ascending for latency metrics, where lower is better). Ties
// break by ascending adapter id.
func (c *Collector) TopAdapters(metric string, limit int) ([]AdapterSnapshot, error) {
	key, asc, err := rankKey(metric)
	if err != nil {
		return nil, err
	}
	snaps := c.all()
	sort.Slice(snaps, func(i, j int) bool {
		a, b := key(snaps[i]), key(snaps[j])
		if a != b {
			if asc {
				return a < b
			}
			return a > b
		}
		return snaps[i].AdapterID < snaps[j].AdapterID
	})
	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func rankKey(metric string) (func(AdapterSnapshot) float64, bool, error) {
	switch metric {
	case MetricRequests, "":
		return func(s AdapterSnapshot) float64 { return float64(s.Requests) }, false, nil
	case MetricSuccessRate:
		return func(s AdapterSnapshot) float64 { return s.SuccessRate }, false, nil
	case MetricAvgLatency:
		return func(s AdapterSnapshot) float64 { return s.AvgLatencyMS }, true, nil
	case MetricP95Latency:
		return func(s AdapterSnapshot) float64 { return s.P95LatencyMS }, true, nil
	case MetricRating:
		return func(s AdapterSnapshot) float64 { return s.AvgRating }, false, nil
	default:
		return nil, false, invalidMetricError{metric: metric}
	}
}

// Compare returns side-by-side snapshots for the given adapters, preserving
// the requested order. Adapters with no traffic yield zero-valued rows.
func (c *Collector) Compare(adapterIDs []string) []AdapterSnapshot {
	out := make([]AdapterSnapshot, 0, len(adapterIDs))
	for _, id := range adapterIDs {
		snap, _ := c.Snapshot(id)
		out = append(out, snap)
	}
	return out
}

func (c *Collector) all() []AdapterSnapshot {
	c.mu.RLock()
	ids := make([]string, 0, len(c.adapters))
	for id := range c.adapters {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	out := make([]AdapterSnapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := c.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out
}
