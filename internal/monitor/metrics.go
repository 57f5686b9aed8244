package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Operation names the metrics are bucketed by.
const (
	OpCreate    = "create"
	OpAmend     = "amend"
	OpTerminate = "terminate"
	OpCancel    = "cancel"
	OpSettle    = "settlement"
)

// SystemMetrics tracks lifecycle and API performance.
type SystemMetrics struct {
	// Latency histograms
	LifecycleLatency *LatencyHistogram
	DBLatency        *LatencyHistogram
	APILatency       *LatencyHistogram

	mu       sync.RWMutex
	counters map[string]*atomic.Uint64

	validationFailures atomic.Uint64
	authFailures       atomic.Uint64
	conflicts          atomic.Uint64
	errorsCount        atomic.Uint64
	requests           atomic.Uint64

	auditPending func() int

	started time.Time
}

// LatencyHistogram tracks latency samples with a sliding window and
// recomputes stats lazily.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		LifecycleLatency: NewLatencyHistogram(1000),
		DBLatency:        NewLatencyHistogram(1000),
		APILatency:       NewLatencyHistogram(1000),
		counters:         make(map[string]*atomic.Uint64),
		started:          time.Now(),
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
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
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

// IncrementOperation counts a successful lifecycle operation.
func (m *SystemMetrics) IncrementOperation(op string) {
	m.mu.RLock()
	c, ok := m.counters[op]
	m.mu.RUnlock()
	if !ok {
		m.mu.Lock()
		if c, ok = m.counters[op]; !ok {
			c = new(atomic.Uint64)
			m.counters[op] = c
		}
		m.mu.Unlock()
	}
	c.Add(1)
}

// Operation returns the success count of op.
func (m *SystemMetrics) Operation(op string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[op]; ok {
		return c.Load()
	}
	return 0
}

func (m *SystemMetrics) IncrementValidationFailures() { m.validationFailures.Add(1) }
func (m *SystemMetrics) IncrementAuthFailures()       { m.authFailures.Add(1) }
func (m *SystemMetrics) IncrementConflicts()          { m.conflicts.Add(1) }
func (m *SystemMetrics) IncrementErrors()             { m.errorsCount.Add(1) }
func (m *SystemMetrics) IncrementRequests()           { m.requests.Add(1) }

// SetAuditPending wires the audit writer's backlog into snapshots.
func (m *SystemMetrics) SetAuditPending(fn func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditPending = fn
}

// MetricsSnapshot is a point-in-time copy of the metrics.
type MetricsSnapshot struct {
	LifecycleLatency   LatencyStats      `json:"lifecycle_latency"`
	DBLatency          LatencyStats      `json:"db_latency"`
	APILatency         LatencyStats      `json:"api_latency"`
	Operations         map[string]uint64 `json:"operations"`
	ValidationFailures uint64            `json:"validation_failures"`
	AuthFailures       uint64            `json:"auth_failures"`
	Conflicts          uint64            `json:"conflicts"`
	ErrorsCount        uint64            `json:"errors_count"`
	Requests           uint64            `json:"requests"`
	AuditPending       int               `json:"audit_pending"`
	GoroutineCount     int               `json:"goroutine_count"`
	HeapAlloc          uint64            `json:"heap_alloc_bytes"`
	Uptime             string            `json:"uptime"`
	Timestamp          time.Time         `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	ops := make(map[string]uint64, len(m.counters))
	for k, c := range m.counters {
		ops[k] = c.Load()
	}
	pendingFn := m.auditPending
	m.mu.RUnlock()

	pending := 0
	if pendingFn != nil {
		pending = pendingFn()
	}

	return MetricsSnapshot{
		LifecycleLatency:   m.LifecycleLatency.Stats(),
		DBLatency:          m.DBLatency.Stats(),
		APILatency:         m.APILatency.Stats(),
		Operations:         ops,
		ValidationFailures: m.validationFailures.Load(),
		AuthFailures:       m.authFailures.Load(),
		Conflicts:          m.conflicts.Load(),
		ErrorsCount:        m.errorsCount.Load(),
		Requests:           m.requests.Load(),
		AuditPending:       pending,
		GoroutineCount:     runtime.NumGoroutine(),
		HeapAlloc:          memStats.HeapAlloc,
		Uptime:             time.Since(m.started).Truncate(time.Second).String(),
		Timestamp:          time.Now(),
	}
}

// Timer helps measure operation duration.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer creates a timer that records to the given histogram.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records elapsed time to histogram.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
