package uid

import (
	"github.com/prometheus/client_golang/prometheus"
)

// namespace is the leading part of all published metrics for the uid store.
const namespace = "tessera"

const uidSubsystem = "uid"

type storeMetrics struct {
	// These metrics have an extra label status = {"hit", "miss"}
	CacheGets *prometheus.CounterVec

	// These metrics have labels kind = {metrics, tagk, tagv} and
	// result = {ok, retry, rejected, error}
	Assignments *prometheus.CounterVec

	// Races counts forward-mapping CAS losses, i.e. allocated ids discarded
	// because another writer won the name. Label kind.
	Races *prometheus.CounterVec

	// Pending tracks in-flight assignments per kind.
	Pending *prometheus.GaugeVec
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		CacheGets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: uidSubsystem,
			Name:      "cache_get_total",
			Help:      "Total number of UID cache lookups.",
		}, []string{"kind", "status"}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: uidSubsystem,
			Name:      "assignments_total",
			Help:      "Total number of UID assignment attempts by terminal result.",
		}, []string{"kind", "result"}),
		Races: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: uidSubsystem,
			Name:      "assignment_races_total",
			Help:      "Total number of assignments that lost the forward-mapping race and wasted an id.",
		}, []string{"kind"}),
		Pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: uidSubsystem,
			Name:      "pending_assignments",
			Help:      "Number of assignments currently in flight.",
		}, []string{"kind"}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *storeMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.CacheGets,
		m.Assignments,
		m.Races,
		m.Pending,
	}
}
