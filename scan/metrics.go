package scan

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tessera"

const scanSubsystem = "scan"

type setMetrics struct {
	// ScannersStarted has a label tier = {raw, rollup}.
	ScannersStarted *prometheus.CounterVec

	// Fallbacks counts tier transitions taken because a tier came back with
	// zero series.
	Fallbacks prometheus.Counter

	// RowsScanned counts rows fetched from storage across all queries.
	RowsScanned prometheus.Counter

	// SeriesReturned counts series delivered upstream.
	SeriesReturned prometheus.Counter
}

func newSetMetrics() *setMetrics {
	return &setMetrics{
		ScannersStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scanSubsystem,
			Name:      "scanners_started_total",
			Help:      "Total number of salt-bucket scanners started.",
		}, []string{"tier"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scanSubsystem,
			Name:      "rollup_fallbacks_total",
			Help:      "Total number of fallbacks to a finer tier after an empty result.",
		}),
		RowsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scanSubsystem,
			Name:      "rows_scanned_total",
			Help:      "Total number of rows fetched from storage.",
		}),
		SeriesReturned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: scanSubsystem,
			Name:      "series_returned_total",
			Help:      "Total number of time series delivered upstream.",
		}),
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *setMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ScannersStarted,
		m.Fallbacks,
		m.RowsScanned,
		m.SeriesReturned,
	}
}
