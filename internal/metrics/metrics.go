package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts every record that reached a terminal state,
	// labeled by source adapter and fate. Reason is empty for accepted
	// records.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txingest_records_total",
		Help: "Ingested records by source, outcome and rejection reason.",
	}, []string{"source", "outcome", "reason"})

	// OperationalFaults counts transient failures that triggered a retry
	// instead of a rejection.
	OperationalFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "txingest_operational_faults_total",
		Help: "Transient faults during ingestion, by source adapter.",
	}, []string{"source"})

	// ProcessDuration observes end-to-end per-record processing time.
	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "txingest_process_duration_seconds",
		Help:    "Per-record ingestion flow duration.",
		Buckets: prometheus.DefBuckets,
	})
)
