package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Write kinds, used as the "kind" label of write metrics
const (
	WriteKindCreate    = "create"
	WriteKindAppend    = "append"
	WriteKindOverwrite = "overwrite"
)

// Metrics holds all Prometheus metrics for archive operations
type Metrics struct {
	// Write/Read operation metrics
	WritesTotal         *prometheus.CounterVec
	WriteDuration       prometheus.Histogram
	WriteBytes          prometheus.Histogram
	WriteFailuresTotal  *prometheus.CounterVec
	ReadsTotal          prometheus.Counter
	ReadDuration        prometheus.Histogram
	ReadBytes           prometheus.Histogram
	ReadFailuresTotal   *prometheus.CounterVec
	IntegrityFailures   prometheus.Counter
	VerifiedOccurrences prometheus.Counter

	// Ledger metrics
	LedgerPersistsTotal   prometheus.Counter
	LedgerPersistDuration prometheus.Histogram
	LedgerFields          prometheus.Gauge
	LedgerOccurrences     prometheus.Gauge
}

// NewMetrics creates all archive metrics and registers them with reg.
// A nil registerer creates unregistered metrics.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "serialbox"
	}
	factory := promauto.With(reg)

	return &Metrics{
		WritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "writes_total",
			Help:      "Total number of field occurrence writes by kind",
		}, []string{"kind"}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "write_duration_seconds",
			Help:      "Histogram of field write durations, ledger persist included",
			Buckets:   prometheus.DefBuckets,
		}),
		WriteBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "write_bytes",
			Help:      "Histogram of field occurrence sizes written",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 12), // 256B to 1GB
		}),
		WriteFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "write_failures_total",
			Help:      "Total number of failed writes by error code",
		}, []string{"code"}),
		ReadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "reads_total",
			Help:      "Total number of successful field occurrence reads",
		}),
		ReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "read_duration_seconds",
			Help:      "Histogram of field read durations",
			Buckets:   prometheus.DefBuckets,
		}),
		ReadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "read_bytes",
			Help:      "Histogram of field occurrence sizes read",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 12),
		}),
		ReadFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "read_failures_total",
			Help:      "Total number of failed reads by error code",
		}, []string{"code"}),
		IntegrityFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "integrity_failures_total",
			Help:      "Total number of checksum mismatches detected on read or verify",
		}),
		VerifiedOccurrences: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "verified_occurrences_total",
			Help:      "Total number of occurrences checked by verify",
		}),
		LedgerPersistsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "persists_total",
			Help:      "Total number of ledger rewrites",
		}),
		LedgerPersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "persist_duration_seconds",
			Help:      "Histogram of ledger rewrite durations",
			Buckets:   prometheus.DefBuckets,
		}),
		LedgerFields: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "fields",
			Help:      "Number of fields recorded in the ledger",
		}),
		LedgerOccurrences: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "occurrences",
			Help:      "Number of field occurrences recorded in the ledger",
		}),
	}
}
