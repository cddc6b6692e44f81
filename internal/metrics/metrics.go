// Package metrics registers Prometheus metrics for the lifecycle engine.
// HTTP metrics are recorded by the transport middleware; business metrics
// are exported here and updated from the service layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts lifecycle transition attempts by action and
	// outcome (success, invalid_transition, unauthorized, conflict, error).
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_transitions_total",
			Help: "Lifecycle transition attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	// SequenceRetriesTotal counts allocation retries caused by sequence
	// collisions under concurrent writers.
	SequenceRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailroom_sequence_retries_total",
			Help: "Sequence allocation retries after uniqueness collisions",
		},
	)

	// DocumentsCreatedTotal counts successful acquisitions.
	DocumentsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailroom_documents_created_total",
			Help: "Documents created through acquisition",
		},
	)

	// NotificationsTotal counts notification fan-out results.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_notifications_total",
			Help: "Notification fan-out runs by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailroom_http_requests_total",
			Help: "HTTP requests by method, normalized path and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailroom_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
