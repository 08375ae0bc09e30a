// Package metrics holds the Prometheus collectors of the proxy. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "techu"

type Metrics struct {
	writes       *prometheus.CounterVec
	failovers    *prometheus.CounterVec
	bumpFailures prometheus.Counter
	cacheLookups *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	lockWaits    *prometheus.HistogramVec
	computes     *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "total",
			Help:      "Mutations by the path that completed them and outcome.",
		}, []string{"kind", "path", "outcome"}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "failovers_total",
			Help:      "Switches between the direct and the queued path, by the path that failed.",
		}, []string{"from"}),
		bumpFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "write",
			Name:      "version_bump_failures_total",
			Help:      "Direct writes whose index version could not be bumped.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by namespace and result.",
		}, []string{"namespace", "result"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Cache store failures that made a read skip the cache.",
		}, []string{"namespace"}),
		lockWaits: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lock_wait_seconds",
			Help:      "Time spent polling for another replica's recompute.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"namespace", "outcome"}),
		computes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "computes_total",
			Help:      "Backend executions on the read path.",
		}, []string{"namespace"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.writes, m.failovers, m.bumpFailures,
		m.cacheLookups, m.cacheErrors, m.lockWaits, m.computes,
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) Write(kind, path, outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, path, outcome).Inc()
}

func (m *Metrics) Failover(from string) {
	if m == nil {
		return
	}
	m.failovers.WithLabelValues(from).Inc()
}

func (m *Metrics) BumpFailed() {
	if m == nil {
		return
	}
	m.bumpFailures.Inc()
}

func (m *Metrics) CacheLookup(ns string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(ns, result).Inc()
}

func (m *Metrics) CacheError(ns string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(ns).Inc()
}

// LockWait records a finished poll. outcome is cached, acquired or timeout.
func (m *Metrics) LockWait(ns, outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.lockWaits.WithLabelValues(ns, outcome).Observe(waited.Seconds())
}

func (m *Metrics) Compute(ns string) {
	if m == nil {
		return
	}
	m.computes.WithLabelValues(ns).Inc()
}
