package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry served on /metrics.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, route pattern and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// DraftAttempts counts draft generator calls by outcome (ok, malformed, error).
	DraftAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "draft_attempts_total", Help: "Draft generator attempts by outcome."},
		[]string{"outcome"},
	)
	// TravelLookups counts leg travel estimates by source (cache, api, fallback).
	TravelLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "travel_lookups_total", Help: "Travel time lookups by source."},
		[]string{"source"},
	)
	// ScheduleWarnings counts non-fatal schedule warnings by kind.
	ScheduleWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_warnings_total", Help: "Schedule warnings by kind."},
		[]string{"kind"},
	)
	// DroppedStops counts stops removed by the scheduler by reason.
	DroppedStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "schedule_dropped_stops_total", Help: "Stops dropped by the scheduler by reason."},
		[]string{"reason"},
	)
	// StageDuration records pipeline stage durations in seconds.
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "pipeline_stage_duration_seconds", Help: "Itinerary pipeline stage duration in seconds.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}},
		[]string{"stage"},
	)
)

var regOnce sync.Once

// Register adds all collectors plus Go and process collectors to Registry.
// Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequests,
			HTTPDuration,
			DraftAttempts,
			TravelLookups,
			ScheduleWarnings,
			DroppedStops,
			StageDuration,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}
