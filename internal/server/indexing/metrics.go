package indexing

import (
	"github.com/prometheus/client_golang/prometheus"

	m "github.com/systemshift/graphdex/internal/metrics"
)

type metrics struct {
	Batches        *prometheus.CounterVec
	Operations     *prometheus.CounterVec
	DroppedBatches prometheus.Counter
	BulkDuration   prometheus.Histogram
}

func newMetrics() metrics {
	subsystem := "dispatcher"

	return metrics{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "Bulk requests sent to the index, by result.",
		}, []string{"result"}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Index operations submitted, by kind.",
		}, []string{"kind"}),
		DroppedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "dropped_batches_total",
			Help:      "Batches dropped because the dispatch queue was full or closed.",
		}),
		BulkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.Namespace,
			Subsystem: subsystem,
			Name:      "bulk_duration_seconds",
			Help:      "Time spent waiting on bulk requests.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Metrics returns the dispatcher's prometheus collectors.
func (d *Dispatcher) Metrics() []prometheus.Collector {
	return m.PrometheusCollectorsFromFields(d.metrics)
}
