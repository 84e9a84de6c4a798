package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovibe_stream_events_total",
			Help: "Stream events delivered to clients, by kind",
		},
		[]string{"kind"},
	)

	StudioCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovibe_studio_calls_total",
			Help: "Studio gateway calls, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	StudioCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "robovibe_studio_call_duration_seconds",
			Help:    "Duration of Studio gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StudioConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "robovibe_studio_connected",
			Help: "1 when the last liveness probe of the Studio server succeeded",
		},
	)

	ModelRecordsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "robovibe_model_records_skipped_total",
			Help: "Streamed model records skipped because they could not be decoded",
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "robovibe_http_requests_total",
			Help: "HTTP requests served, by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	PlansAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "robovibe_plans_abandoned_total",
			Help: "Plans stopped by a failing step",
		},
	)
)

// Registry holds every collector of the process.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		StreamEvents,
		StudioCalls,
		StudioCallDuration,
		StudioConnected,
		ModelRecordsSkipped,
		PlansAbandoned,
		HTTPRequests,
	)
}
