// Package stats collects and aggregates query events in-process: counts per
// query kind, latency percentiles, cache effectiveness, and most-queried
// datasets.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// QueryEvent describes one completed analysis query.
type QueryEvent struct {
	Kind      string    `json:"kind"`
	Owner     string    `json:"owner"`
	Results   int       `json:"results"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// AggregatedStats is the roll-up served by the stats endpoint.
type AggregatedStats struct {
	TotalQueries     int64            `json:"total_queries"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
	ZeroResultCount  int64            `json:"zero_result_count"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	QueriesByKind    map[string]int64 `json:"queries_by_kind"`
	TopOwners        []OwnerCount     `json:"top_owners"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

// OwnerCount pairs a dataset owner with its query count.
type OwnerCount struct {
	Owner string `json:"owner"`
	Count int64  `json:"count"`
}

// Aggregator accumulates query events. Record is cheap enough to call from
// request handlers directly.
type Aggregator struct {
	mu           sync.RWMutex
	totalQueries atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	zeroResults  atomic.Int64
	latencies    []int64
	maxEvents    int
	kindCounts   map[string]int64
	ownerCounts  map[string]int64
	startTime    time.Time
}

// NewAggregator creates an empty Aggregator. eventBuffer sizes the latency
// history; values below 1 fall back to a default of 10000.
func NewAggregator(eventBuffer int) *Aggregator {
	if eventBuffer < 1 {
		eventBuffer = 10000
	}
	return &Aggregator{
		latencies:   make([]int64, 0, eventBuffer),
		maxEvents:   eventBuffer,
		kindCounts:  make(map[string]int64),
		ownerCounts: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// Record folds one event into the aggregate.
func (a *Aggregator) Record(event QueryEvent) {
	a.totalQueries.Add(1)
	if event.CacheHit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
	if event.Results == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	if len(a.latencies) >= a.maxEvents {
		// Drop the oldest half.
		a.latencies = append(a.latencies[:0], a.latencies[a.maxEvents/2:]...)
	}
	a.latencies = append(a.latencies, event.LatencyMs)
	a.kindCounts[event.Kind]++
	a.ownerCounts[event.Owner]++
	a.mu.Unlock()
}

// Stats returns the current aggregate.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalQueries:    a.totalQueries.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		QueriesByKind:   make(map[string]int64, len(a.kindCounts)),
	}
	for kind, count := range a.kindCounts {
		stats.QueriesByKind[kind] = count
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopOwners = topN(a.ownerCounts, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []OwnerCount {
	result := make([]OwnerCount, 0, len(counts))
	for owner, count := range counts {
		result = append(result, OwnerCount{Owner: owner, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Owner < result[j].Owner
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
