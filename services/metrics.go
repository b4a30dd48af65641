package services

import (
	"time"

	"catalog-hierarchy/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "catalog"

// Mutation outcomes used as the outcome label.
const (
	OutcomeCommitted = "committed"
	OutcomeRejected  = "rejected"
	OutcomeNoop      = "noop"
)

// HierarchyMetrics groups the prometheus collectors of the hierarchy service.
// A nil *HierarchyMetrics is valid and records nothing.
type HierarchyMetrics struct {
	mutationsTotal   *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	lockConflicts    *prometheus.CounterVec
	cacheRequests    *prometheus.CounterVec
	cacheEntries     prometheus.Gauge
	anomalies        *prometheus.CounterVec
	repairs          *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	traversals       *prometheus.HistogramVec
}

// NewHierarchyMetrics registers the collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewHierarchyMetrics(reg prometheus.Registerer) *HierarchyMetrics {
	factory := promauto.With(reg)

	return &HierarchyMetrics{
		mutationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "mutations_total",
			Help:      "Hierarchy mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		mutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "mutation_duration_seconds",
			Help:      "Time spent in a hierarchy mutation including lock wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		lockConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "lock_conflicts_total",
			Help:      "Mutations rejected with CONCURRENT_MODIFICATION",
		}, []string{"operation"}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Traversal cache lookups by result",
		}, []string{"result"}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries currently held by the traversal cache",
		}),
		anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "anomalies_detected_total",
			Help:      "Consistency anomalies found by forest validation",
		}, []string{"kind"}),
		repairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "repairs_total",
			Help:      "Rows rewritten by the path repairer",
		}, []string{"kind"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the publisher",
		}, []string{"type", "outcome"}),
		traversals: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "hierarchy",
			Name:      "traversal_duration_seconds",
			Help:      "Traversal latency by operation",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *HierarchyMetrics) ObserveMutation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
	m.mutationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *HierarchyMetrics) LockConflict(operation string) {
	if m == nil {
		return
	}
	m.lockConflicts.WithLabelValues(operation).Inc()
}

func (m *HierarchyMetrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *HierarchyMetrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}

func (m *HierarchyMetrics) AnomaliesFound(counts map[models.AnomalyKind]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.anomalies.WithLabelValues(string(kind)).Add(float64(n))
	}
}

func (m *HierarchyMetrics) Repaired(kind models.AnomalyKind, n int) {
	if m == nil || n == 0 {
		return
	}
	m.repairs.WithLabelValues(string(kind)).Add(float64(n))
}

func (m *HierarchyMetrics) EventPublished(eventType string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventsPublished.WithLabelValues(eventType, outcome).Inc()
}

func (m *HierarchyMetrics) ObserveTraversal(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.traversals.WithLabelValues(operation).Observe(elapsed.Seconds())
}
