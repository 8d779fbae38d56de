package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tripscore/internal/model"
)

var (
	// TripsScored counts scoring calls.
	// Labels:
	//   - source: "rest", "kafka", "spool", "api", or "unknown" when unset
	//   - outcome: "ok", "malformed", "unknown_sign", "duplicate", "error"
	TripsScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripscore_trips_scored_total",
			Help: "Total number of trips submitted for scoring",
		},
		[]string{"source", "outcome"},
	)

	TripScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripscore_overall_score",
			Help:    "Distribution of overall trip safety scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	ScoringDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripscore_scoring_duration_seconds",
			Help:    "Time spent scoring a single trip",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// PostedLimitViolations counts violation intervals found against posted
	// signage, independent of device overspeed events.
	PostedLimitViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripscore_posted_limit_violations_total",
			Help: "Total number of posted-limit violation intervals",
		},
	)

	KinematicEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripscore_kinematic_events_total",
			Help: "Total number of device kinematic events by type",
		},
		[]string{"type"},
	)

	InsufficientDataTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripscore_insufficient_data_total",
			Help: "Trips scored without events or accepted sign detections",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripscore_queue_depth",
			Help: "Submissions waiting for a scoring worker",
		},
	)
)

// Observe records a finished report.
func Observe(rep model.Report) {
	TripScore.Observe(float64(rep.OverallScore))
	PostedLimitViolations.Add(float64(len(rep.ViolationIntervals)))
	for t, n := range rep.EventCounts {
		if n > 0 {
			KinematicEvents.WithLabelValues(string(t)).Add(float64(n))
		}
	}
	if rep.InsufficientData {
		InsufficientDataTrips.Inc()
	}
}
