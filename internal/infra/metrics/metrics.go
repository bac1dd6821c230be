package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var snapshotRefreshTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubebridge_snapshot_refresh_total",
		Help: "Total number of snapshot refresh attempts by result.",
	},
	[]string{"result"},
)

// TransportFallbackTotal counts operations served by a non-primary
// transport after the primary failed an actual call.
var TransportFallbackTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubebridge_transport_fallback_total",
		Help: "Total number of operations that fell back from the primary " +
			"HTTP transport to the structured API client.",
	},
	[]string{"operation"},
)

var clusterAPIErrorsTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubebridge_cluster_api_errors_total",
		Help: "Total number of cluster API call failures by error category.",
	},
	[]string{"category"},
)

var scaleVerificationTotal = promauto.With(prometheus.DefaultRegisterer).NewCounterVec(
	prometheus.CounterOpts{
		Name: "kubebridge_scale_verification_total",
		Help: "Total number of finished mutation verification polls by result.",
	},
	[]string{"result"},
)

// RecordRefresh counts one snapshot refresh attempt.
func RecordRefresh(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}

	snapshotRefreshTotal.WithLabelValues(result).Inc()
}

// RecordTransportFallback counts one primary-transport failure that caused
// the fallback transport to be tried.
func RecordTransportFallback(operation string) {
	TransportFallbackTotal.WithLabelValues(operation).Inc()
}

// RecordAPIError counts one classified cluster API failure.
func RecordAPIError(category string) {
	clusterAPIErrorsTotal.WithLabelValues(category).Inc()
}

// RecordVerification counts one completed verification poll
// ("converged" or "timeout").
func RecordVerification(result string) {
	scaleVerificationTotal.WithLabelValues(result).Inc()
}
