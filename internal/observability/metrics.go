// Package observability registers and updates Prometheus metrics for the
// mycalendar backend.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	upstreamCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mycalendar",
		Subsystem: "moodle",
		Name:      "upstream_calls_total",
		Help:      "Moodle web-service calls by function and outcome.",
	}, []string{"wsfunction", "outcome"})
	upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mycalendar",
		Subsystem: "moodle",
		Name:      "upstream_call_duration_seconds",
		Help:      "Latency of Moodle web-service calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"wsfunction"})
	fallbackSynthesized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mycalendar",
		Subsystem: "aggregator",
		Name:      "fallback_assignments_synthesized_total",
		Help:      "Pseudo-assignments synthesized from gradebook lines.",
	})
	missingCourseTotals = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mycalendar",
		Subsystem: "aggregator",
		Name:      "missing_course_total_lines_total",
		Help:      "Grade fetches whose gradebook had no course-total line.",
	})
	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mycalendar",
		Subsystem: "session",
		Name:      "active_sessions",
		Help:      "Sessions currently held in the in-memory store.",
	})
)

func init() {
	prometheus.MustRegister(
		upstreamCalls,
		upstreamDuration,
		fallbackSynthesized,
		missingCourseTotals,
		activeSessions,
	)
}

// RecordUpstreamCall tracks one Moodle web-service exchange.
func RecordUpstreamCall(wsfunction string, elapsed time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	upstreamCalls.WithLabelValues(wsfunction, outcome).Inc()
	upstreamDuration.WithLabelValues(wsfunction).Observe(elapsed.Seconds())
}

// RecordFallbackSynthesis counts pseudo-assignments built from gradebook data.
func RecordFallbackSynthesis(count int) {
	if count > 0 {
		fallbackSynthesized.Add(float64(count))
	}
}

// RecordMissingCourseTotal counts gradebooks lacking a course-total line.
func RecordMissingCourseTotal() {
	missingCourseTotals.Inc()
}

// SetActiveSessions updates the session gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
