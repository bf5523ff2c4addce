package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CodesAllocated       *prometheus.CounterVec
	AllocationConflicts  prometheus.Counter
	AllocationAnomalies  prometheus.Counter
	TransfersCompleted   prometheus.Counter
	TransfersRejected    *prometheus.CounterVec
	AuditEntriesRecorded prometheus.Counter
	AuditAppendFailures  prometheus.Counter
	AuditRetryQueueDepth prometheus.Gauge
	AuditEntriesDropped  prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
}

// New creates all metrics and registers them with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics against the given registerer. Tests pass a
// fresh registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CodesAllocated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diocese_codes_allocated_total",
			Help: "Entity codes minted, by role.",
		}, []string{"role"}),
		AllocationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_allocation_conflicts_total",
			Help: "Uniqueness conflicts hit during allocation before a retry.",
		}),
		AllocationAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_allocation_anomalies_total",
			Help: "Existing codes excluded from sequence seeding because they do not parse.",
		}),
		TransfersCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_transfers_completed_total",
			Help: "Transfers committed end to end.",
		}),
		TransfersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "diocese_transfers_rejected_total",
			Help: "Transfers rejected, by error code.",
		}, []string{"code"}),
		AuditEntriesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_audit_entries_recorded_total",
			Help: "Audit entries appended to the ledger.",
		}),
		AuditAppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_audit_append_failures_total",
			Help: "Failed ledger appends queued for background retry.",
		}),
		AuditRetryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "diocese_audit_retry_queue_depth",
			Help: "Entries currently waiting in the audit retry queue.",
		}),
		AuditEntriesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "diocese_audit_entries_dropped_total",
			Help: "Audit entries dropped because the retry queue overflowed.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "diocese_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
