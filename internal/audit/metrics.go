package audit

import "github.com/prometheus/client_golang/prometheus"

const labelEventType = "eventType"

// EntriesTotal counts successfully appended entries by event type.
var EntriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_audit_entries_total",
		Help: "Total number of audit entries appended, by event type",
	},
	[]string{labelEventType},
)

// AppendErrorsTotal counts failed Log calls by event type.
var AppendErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_audit_append_errors_total",
		Help: "Total number of audit append failures, by event type",
	},
	[]string{labelEventType},
)

// QueryDuration tracks wall-clock time spent in Query.
var QueryDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "trustcore_audit_query_duration_seconds",
		Help:    "Duration of audit log queries",
		Buckets: prometheus.DefBuckets,
	},
)

// IntegrityCheckFailuresTotal counts entries found invalid by VerifyIntegrity.
var IntegrityCheckFailuresTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "trustcore_audit_integrity_failures_total",
		Help: "Total number of entries that failed integrity verification",
	},
)

// RegisterMetrics registers all audit metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(EntriesTotal)
	reg.MustRegister(AppendErrorsTotal)
	reg.MustRegister(QueryDuration)
	reg.MustRegister(IntegrityCheckFailuresTotal)
}
