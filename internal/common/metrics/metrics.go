package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BrokerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_operations_total",
			Help: "Total number of broker operations processed",
		},
		[]string{"operation"},
	)

	BrokerOperationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_operations_failed_total",
			Help: "Total number of broker operations that failed",
		},
		[]string{"operation", "kind"},
	)

	BrokerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "broker_operation_duration_seconds",
			Help: "Duration of broker operation processing in seconds",
		},
		[]string{"operation"},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of requests issued to the lending backend",
		},
		[]string{"method", "outcome"},
	)

	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "upstream_request_duration_seconds",
			Help: "Duration of lending backend requests in seconds",
		},
		[]string{"method"},
	)

	CompensationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broker_compensations_total",
			Help: "Total number of compensating product deletions",
		},
	)
)
