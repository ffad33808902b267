// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "portal_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "route"},
	)

	InboxEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_inbox_events_total",
			Help: "Total number of consumed events by type and outcome",
		},
		[]string{"event_type", "outcome"},
	)

	InboxEventsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "portal_inbox_events_in_flight",
			Help: "Number of events currently being handled",
		},
		[]string{"event_type"},
	)

	OutboxPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_outbox_publish_total",
			Help: "Total number of published events by type and result",
		},
		[]string{"event_type", "result"},
	)

	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_status_transitions_total",
			Help: "Guard decisions by trigger and outcome",
		},
		[]string{"trigger", "outcome", "to"},
	)
)
