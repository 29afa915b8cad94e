package index

// metrics.go mirrors the teacher's pkg/metrics.go shape: a thin abstraction
// over Prometheus so the index manager can be used with or without metrics,
// plus the per-field access counters named in spec §4.6 (access count,
// last-access timestamp, value-frequency histogram).

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-field access statistics: a monotonic access counter, a
// last-access timestamp, and a key -> frequency histogram.
type Metrics struct {
	accessCount atomic.Uint64
	lastAccess  atomic.Int64 // unix nanos

	mu                 sync.Mutex
	valueDistribution map[string]uint64
}

func newMetrics() *Metrics {
	return &Metrics{valueDistribution: make(map[string]uint64)}
}

func (m *Metrics) recordAccess(key string) {
	m.accessCount.Add(1)
	m.lastAccess.Store(time.Now().UnixNano())

	m.mu.Lock()
	m.valueDistribution[key]++
	m.mu.Unlock()
}

// Snapshot is a point-in-time, read-only copy of a field's access metrics.
type Snapshot struct {
	AccessCount       uint64
	LastAccess        time.Time
	ValueDistribution map[string]uint64
}

func (m *Metrics) snapshot() Snapshot {
	m.mu.Lock()
	dist := make(map[string]uint64, len(m.valueDistribution))
	for k, v := range m.valueDistribution {
		dist[k] = v
	}
	m.mu.Unlock()

	var last time.Time
	if nanos := m.lastAccess.Load(); nanos != 0 {
		last = time.Unix(0, nanos)
	}
	return Snapshot{
		AccessCount:       m.accessCount.Load(),
		LastAccess:        last,
		ValueDistribution: dist,
	}
}

// Metrics returns a snapshot of every indexed field's access metrics.
func (m *Manager) Metrics() map[string]Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Snapshot, len(m.metrics))
	for field, fm := range m.metrics {
		out[field] = fm.snapshot()
	}
	return out
}

/*
   ---------------- Prometheus sink (opt-in, matches teacher's pattern) ----------------
*/

// metricsSink is the internal abstraction over the concrete metrics backend
// (Prometheus vs noop), matching pkg/metrics.go in the teacher repo.
type metricsSink interface {
	incAccess(field string)
}

type noopMetrics struct{}

func (noopMetrics) incAccess(string) {}

type promMetrics struct {
	accesses *prometheus.CounterVec
}

// NewPrometheusSink builds a metricsSink backed by reg. Passing a nil
// registry is a programmer error; callers that want metrics disabled should
// simply omit WithMetricsSink (the default is the no-op sink).
func NewPrometheusSink(reg *prometheus.Registry) metricsSink {
	pm := &promMetrics{
		accesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nyarudb",
			Subsystem: "index",
			Name:      "accesses_total",
			Help:      "Number of index Insert/Search calls per field.",
		}, []string{"field"}),
	}
	reg.MustRegister(pm.accesses)
	return pm
}

func (p *promMetrics) incAccess(field string) {
	p.accesses.WithLabelValues(field).Inc()
}
