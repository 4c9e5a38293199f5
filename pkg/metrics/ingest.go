package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the telemetry ingestion
// pipeline.
type IngestMetrics struct {
	PayloadsTotal    *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	WriteDuration    prometheus.Histogram
	Rollbacks        prometheus.Counter
	ConsumerErrors   *prometheus.CounterVec
}

// NewIngestMetrics creates and registers ingestion pipeline metrics.
func NewIngestMetrics(namespace string) *IngestMetrics {
	m := &IngestMetrics{
		PayloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "payloads_total",
				Help:      "Total number of telemetry payloads processed",
			},
			[]string{"source", "status"}, // source: http, amqp; status: success, validation_error, storage_error
		),
		ValidationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "validation_errors_total",
				Help:      "Total number of rejected payloads by validation error kind",
			},
			[]string{"kind"},
		),
		WriteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "write_duration_seconds",
				Help:      "Duration of the transactional write for one payload",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Rollbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "rollbacks_total",
				Help:      "Total number of ingestion transactions rolled back",
			},
		),
		ConsumerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "consumer_errors_total",
				Help:      "Total number of AMQP intake errors",
			},
			[]string{"queue", "error_type"},
		),
	}

	MustRegister(
		m.PayloadsTotal,
		m.ValidationErrors,
		m.WriteDuration,
		m.Rollbacks,
		m.ConsumerErrors,
	)

	return m
}
