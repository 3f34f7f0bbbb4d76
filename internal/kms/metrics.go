package kms

import "github.com/prometheus/client_golang/prometheus"

const (
	labelProvider  = "provider"
	labelOperation = "operation"
)

// OperationsTotal counts Provider operations by provider and operation name.
var OperationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_kms_operations_total",
		Help: "Total number of KMS provider operations, by provider and operation",
	},
	[]string{labelProvider, labelOperation},
)

// OperationErrorsTotal counts failed Provider operations.
var OperationErrorsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "trustcore_kms_operation_errors_total",
		Help: "Total number of failed KMS provider operations, by provider and operation",
	},
	[]string{labelProvider, labelOperation},
)

// RegisterMetrics registers all KMS metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(OperationsTotal)
	reg.MustRegister(OperationErrorsTotal)
}

// observe records one provider operation's outcome. Called by each Provider
// implementation around its cryptographic and key-lifecycle calls.
func observe(provider, operation string, err error) {
	OperationsTotal.WithLabelValues(provider, operation).Inc()
	if err != nil {
		OperationErrorsTotal.WithLabelValues(provider, operation).Inc()
	}
}
