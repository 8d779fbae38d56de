package engine

import (
	"fmt"
	"math"
	"time"

	"tripscore/internal/model"
)

const (
	warnNoEvents     = "no kinematic events recorded"
	warnNoDetections = "no sign detections after filtering"
)

// Assembly is everything the report is composed from.
type Assembly struct {
	ID          string
	GeneratedAt time.Time
	Trip        model.Trip
	Detections  []model.NormalizedDetection
	Timeline    []model.LimitInterval
	Aggregates  model.Aggregates
	Violations  []model.ViolationInterval
	Scores      Scores
}

// Assemble bundles the pipeline stages into a Report. Speeds are presented in
// km/h here and nowhere else.
func Assemble(in Assembly) model.Report {
	rep := model.Report{
		ID:                 in.ID,
		TripID:             in.Trip.ID,
		VehicleID:          in.Trip.VehicleID,
		GeneratedAt:        in.GeneratedAt,
		OverallScore:       in.Scores.Overall,
		Grade:              Grade(in.Scores.Overall),
		RiskLevel:          RiskLevel(in.Scores.Overall),
		CategoryScores:     in.Scores.Categories,
		EventCounts:        in.Aggregates.Counts,
		EventRates:         in.Aggregates.Rates,
		MaxSeverity:        in.Aggregates.MaxSeverity,
		LimitTimeline:      in.Timeline,
		ViolationIntervals: in.Violations,
		Recommendations:    in.Scores.Recommendations,
		Issues:             issues(in.Aggregates.Counts, in.Violations),
		Summary:            summarize(in.Trip, in.Detections, in.Aggregates),
	}
	if len(in.Trip.Events) == 0 {
		rep.Warnings = append(rep.Warnings, warnNoEvents)
	}
	if len(in.Detections) == 0 {
		rep.Warnings = append(rep.Warnings, warnNoDetections)
	}
	rep.InsufficientData = insufficient(in.Trip, in.Detections)
	return rep
}

func insufficient(trip model.Trip, dets []model.NormalizedDetection) bool {
	return len(trip.Events) == 0 && len(dets) == 0
}

func issues(counts map[model.EventType]int, violations []model.ViolationInterval) []string {
	out := make([]string, 0, 5)
	labels := []struct {
		t     model.EventType
		label string
	}{
		{model.EventHardBrake, "Hard braking"},
		{model.EventHarshAccel, "Harsh acceleration"},
		{model.EventOverspeed, "Device overspeed alerts"},
		{model.EventUnsafeCurve, "Unsafe cornering"},
	}
	for _, l := range labels {
		if n := counts[l.t]; n > 0 {
			out = append(out, fmt.Sprintf("%s: %d times", l.label, n))
		}
	}
	if len(violations) > 0 {
		var worst float64
		for _, v := range violations {
			worst = math.Max(worst, v.ExcessKPH)
		}
		out = append(out, fmt.Sprintf("Exceeded posted limit %d times (max +%.0f km/h)", len(violations), worst))
	}
	return out
}

func summarize(trip model.Trip, dets []model.NormalizedDetection, agg model.Aggregates) model.Summary {
	s := model.Summary{
		DurationMinutes: round1(trip.Duration().Minutes()),
		DistanceKM:      round1(agg.DistanceKM),
		TotalEvents:     len(trip.Events),
		SignsDetected:   len(trip.Detections),
		SignsAccepted:   len(dets),
	}
	if len(trip.Events) == 0 {
		return s
	}
	var sum float64
	for _, ev := range trip.Events {
		kph := ev.SpeedKPH()
		sum += kph
		s.MaxSpeedKPH = math.Max(s.MaxSpeedKPH, kph)
	}
	s.MaxSpeedKPH = round1(s.MaxSpeedKPH)
	s.AvgSpeedKPH = round1(sum / float64(len(trip.Events)))
	return s
}
