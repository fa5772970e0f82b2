// Package metrics defines the Prometheus metrics of the window engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Namespace = "windowfields"
	Subsystem = "engine"

	LabelCode = "code"
)

// Metrics are the counters and gauges of a window engine.
type Metrics struct {
	DocumentsIn       prometheus.Counter
	DocumentsOut      prometheus.Counter
	Partitions        prometheus.Counter
	BufferedDocuments prometheus.Gauge
	Failures          *prometheus.CounterVec
}

// New creates the engine metrics and registers them with the given registerer. With a nil
// registerer the metrics are created but not registered anywhere.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DocumentsIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "documents_in_total",
			Help:      "Total number of documents pulled from the source",
		}),
		DocumentsOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "documents_out_total",
			Help:      "Total number of documents emitted with the output fields set",
		}),
		Partitions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "partitions_total",
			Help:      "Total number of partitions started",
		}),
		BufferedDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "buffered_documents",
			Help:      "Number of documents held in the partition buffer",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "failures_total",
			Help:      "Total number of failed executions by error code",
		}, []string{LabelCode}),
	}
}
