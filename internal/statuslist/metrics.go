package statuslist

import "github.com/prometheus/client_golang/prometheus"

const (
	labelPurpose = "purpose"
	labelOp      = "op"
)

// AllocationsTotal counts allocateIndex calls by list purpose.
var AllocationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_statuslist_allocations_total",
		Help: "Total number of status list index allocations, by purpose",
	},
	[]string{labelPurpose},
)

// StatusMutationsTotal counts setStatus calls by list purpose.
var StatusMutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_statuslist_mutations_total",
		Help: "Total number of status list revoke/unrevoke mutations, by purpose",
	},
	[]string{labelPurpose},
)

// OperationDuration tracks wall-clock time spent per Store operation.
var OperationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "trustcore_statuslist_operation_duration_seconds",
		Help:    "Duration of status list store operations",
		Buckets: prometheus.DefBuckets,
	},
	[]string{labelOp},
)

// RegisterMetrics registers all status-list metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AllocationsTotal)
	reg.MustRegister(StatusMutationsTotal)
	reg.MustRegister(OperationDuration)
}
