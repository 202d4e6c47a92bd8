// Package metrics defines the Prometheus collectors of the gateway.
// Collectors register with the default registry, served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProxyRequests counts proxied API calls by route and response status.
	ProxyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "bff",
			Name:      "proxy_requests_total",
			Help:      "Total proxied API requests",
		},
		[]string{"route", "method", "status"},
	)

	ProxyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "masivos",
			Subsystem: "bff",
			Name:      "proxy_request_duration_seconds",
			Help:      "Duration of proxied API requests including the backend call",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// UpstreamFailures counts proxy failures by cause: token, request,
	// transport, status or decode.
	UpstreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "bff",
			Name:      "upstream_failures_total",
			Help:      "Total proxied requests answered with the generic error envelope",
		},
		[]string{"route", "cause"},
	)

	// UpstreamRetries counts retried backend calls by host.
	UpstreamRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Backend calls retried after a transient failure",
		},
		[]string{"host"},
	)

	DashboardFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "dashboard",
			Name:      "fallbacks_total",
			Help:      "Statistics sources replaced by fallback values",
		},
		[]string{"source"},
	)

	// BulkOperations counts per-contact bulk calls by operation and outcome.
	BulkOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "bulk",
			Name:      "operations_total",
			Help:      "Per-contact operations issued by bulk runs",
		},
		[]string{"op", "outcome"},
	)

	ExportedContacts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "masivos",
			Subsystem: "export",
			Name:      "contacts_total",
			Help:      "Contacts written by list exports",
		},
		[]string{"sink"},
	)
)
