package cache

import (
	"sync/atomic"
	"time"

	"tiercache/internal/circuitbreaker"
	"tiercache/internal/local"
)

// tierCounters tracks hit/miss totals for a remote tier. A call counts
// only when the tier was actually consulted; breaker-rejected calls never
// reach the tier and are not observed by it.
type tierCounters struct {
	hits   int64
	misses int64
}

func (t *tierCounters) hit()  { atomic.AddInt64(&t.hits, 1) }
func (t *tierCounters) miss() { atomic.AddInt64(&t.misses, 1) }

func (t *tierCounters) snapshot() TierStats {
	stats := TierStats{
		Hits:   atomic.LoadInt64(&t.hits),
		Misses: atomic.LoadInt64(&t.misses),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

// TierStats is a read-only hit/miss snapshot for a remote tier
type TierStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Statistics is the full per-tier snapshot returned by GetStatistics
type Statistics struct {
	L1       local.Stats            `json:"l1"`
	L2       TierStats              `json:"l2"`
	L3       TierStats              `json:"l3"`
	Breakers []circuitbreaker.Stats `json:"breakers"`
}

// perfCounters aggregates operation latencies with atomics so snapshots
// never block the hot path
type perfCounters struct {
	getCount int64
	getNanos int64
	setCount int64
	setNanos int64
}

func (p *perfCounters) recordGet(d time.Duration) {
	atomic.AddInt64(&p.getCount, 1)
	atomic.AddInt64(&p.getNanos, int64(d))
}

func (p *perfCounters) recordSet(d time.Duration) {
	atomic.AddInt64(&p.setCount, 1)
	atomic.AddInt64(&p.setNanos, int64(d))
}

// PerformanceMetrics is the running latency snapshot
type PerformanceMetrics struct {
	AverageGetTime  time.Duration `json:"average_get_time"`
	AverageSetTime  time.Duration `json:"average_set_time"`
	TotalOperations int64         `json:"total_operations"`
}

func (p *perfCounters) snapshot() PerformanceMetrics {
	gets := atomic.LoadInt64(&p.getCount)
	sets := atomic.LoadInt64(&p.setCount)

	metrics := PerformanceMetrics{TotalOperations: gets + sets}
	if gets > 0 {
		metrics.AverageGetTime = time.Duration(atomic.LoadInt64(&p.getNanos) / gets)
	}
	if sets > 0 {
		metrics.AverageSetTime = time.Duration(atomic.LoadInt64(&p.setNanos) / sets)
	}
	return metrics
}
