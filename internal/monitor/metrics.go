package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EngineMetrics tracks cycle throughput and latency across all
// strategy runners.
type EngineMetrics struct {
	// Latency histograms
	CycleLatency    *LatencyHistogram
	DispatchLatency *LatencyHistogram

	// Counters
	cycles     uint64
	signals    uint64
	orders     uint64
	rejections uint64
	errors     uint64
}

// LatencyHistogram tracks latency samples with a sliding window.
// Stats are computed lazily and cached until new samples arrive.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewEngineMetrics creates a new metrics instance.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		CycleLatency:    NewLatencyHistogram(1000),
		DispatchLatency: NewLatencyHistogram(1000),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	min, max := sorted[0], sorted[n-1]
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   min,
		Max:   max,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementCycles increments the completed-cycles counter.
func (m *EngineMetrics) IncrementCycles() {
	atomic.AddUint64(&m.cycles, 1)
}

// IncrementSignals increments the generated-signals counter.
func (m *EngineMetrics) IncrementSignals() {
	atomic.AddUint64(&m.signals, 1)
}

// IncrementOrders increments the submitted-orders counter.
func (m *EngineMetrics) IncrementOrders() {
	atomic.AddUint64(&m.orders, 1)
}

// IncrementRejections increments the risk-rejections counter.
func (m *EngineMetrics) IncrementRejections() {
	atomic.AddUint64(&m.rejections, 1)
}

// IncrementErrors increments the cycle-errors counter.
func (m *EngineMetrics) IncrementErrors() {
	atomic.AddUint64(&m.errors, 1)
}

// MetricsSnapshot is a point-in-time view served by the API.
type MetricsSnapshot struct {
	CycleLatency    LatencyStats `json:"cycle_latency"`
	DispatchLatency LatencyStats `json:"dispatch_latency"`
	Cycles          uint64       `json:"cycles"`
	Signals         uint64       `json:"signals"`
	Orders          uint64       `json:"orders"`
	Rejections      uint64       `json:"rejections"`
	Errors          uint64       `json:"errors"`
	GoroutineCount  int          `json:"goroutine_count"`
	HeapAlloc       uint64       `json:"heap_alloc_bytes"`
	Timestamp       time.Time    `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *EngineMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		CycleLatency:    m.CycleLatency.Stats(),
		DispatchLatency: m.DispatchLatency.Stats(),
		Cycles:          atomic.LoadUint64(&m.cycles),
		Signals:         atomic.LoadUint64(&m.signals),
		Orders:          atomic.LoadUint64(&m.orders),
		Rejections:      atomic.LoadUint64(&m.rejections),
		Errors:          atomic.LoadUint64(&m.errors),
		GoroutineCount:  runtime.NumGoroutine(),
		HeapAlloc:       memStats.HeapAlloc,
		Timestamp:       time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
