package model

import "time"

type EventType string

const (
	EventHardBrake   EventType = "hard_brake"
	EventOverspeed   EventType = "overspeed"
	EventHarshAccel  EventType = "harsh_accel"
	EventUnsafeCurve EventType = "unsafe_curve"
)

// EventTypes lists the kinematic event types in report order.
var EventTypes = []EventType{EventHardBrake, EventOverspeed, EventHarshAccel, EventUnsafeCurve}

func (t EventType) Valid() bool {
	switch t {
	case EventHardBrake, EventOverspeed, EventHarshAccel, EventUnsafeCurve:
		return true
	}
	return false
}

type Category string

const (
	CategoryBraking         Category = "braking"
	CategorySpeedCompliance Category = "speed_compliance"
	CategoryAcceleration    Category = "acceleration"
	CategoryCornering       Category = "cornering"
	CategorySignCompliance  Category = "sign_compliance"
)

var Categories = []Category{
	CategoryBraking,
	CategorySpeedCompliance,
	CategoryAcceleration,
	CategoryCornering,
	CategorySignCompliance,
}

type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// KinematicEvent is a device-side event. Speed is in m/s, accelerations in m/s².
type KinematicEvent struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	Position     Position  `json:"position"`
	Speed        float64   `json:"speed"`
	Acceleration float64   `json:"acceleration"`
	LateralAccel *float64  `json:"lateral_accel,omitempty"`
}

func (e KinematicEvent) SpeedKPH() float64 {
	return MPSToKPH(e.Speed)
}

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type RawDetection struct {
	ClassID    int          `json:"class_id"`
	Confidence float64      `json:"confidence"`
	Timestamp  time.Time    `json:"timestamp"`
	BBox       *BoundingBox `json:"bbox,omitempty"`
}

// NormalizedDetection is a deduplicated detection enriched from the sign
// catalog. Effect is the sign's effect on the posted limit: "limit",
// "end_limit", "end_all_limits" or empty.
type NormalizedDetection struct {
	ClassID      int          `json:"class_id"`
	ClassName    string       `json:"class_name"`
	Confidence   float64      `json:"confidence"`
	Timestamp    time.Time    `json:"timestamp"`
	BBox         *BoundingBox `json:"bbox,omitempty"`
	IsSpeedLimit bool         `json:"is_speed_limit"`
	LimitKPH     *int         `json:"limit_kph"`
	Effect       string       `json:"effect,omitempty"`
}

// Trip is a closed drive. DistanceM is computed upstream from the GPS trace.
type Trip struct {
	ID         string           `json:"id,omitempty"`
	VehicleID  string           `json:"vehicle_id,omitempty"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
	DistanceM  float64          `json:"distance_m"`
	Events     []KinematicEvent `json:"events"`
	Detections []RawDetection   `json:"detections"`
}

func (t Trip) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}

type LimitInterval struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	LimitKPH *int      `json:"limit_kph"`
	SetBy    string    `json:"set_by,omitempty"`
}

type ViolationInterval struct {
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	ObservedSpeedKPH float64   `json:"observed_speed_kph"`
	PostedLimitKPH   int       `json:"posted_limit_kph"`
	ExcessKPH        float64   `json:"excess_kph"`
	EventCount       int       `json:"event_count"`
	Severity         float64   `json:"severity"`
}

type Rate struct {
	PerKM   float64 `json:"per_km"`
	PerHour float64 `json:"per_hour"`
}

type Aggregates struct {
	Counts        map[EventType]int     `json:"counts"`
	Rates         map[EventType]Rate    `json:"rates"`
	MaxSeverity   map[EventType]float64 `json:"max_severity"`
	TotalSeverity map[EventType]float64 `json:"total_severity"`
	DistanceKM    float64               `json:"distance_km"`
	DurationHours float64               `json:"duration_hours"`
}

type CategoryScore struct {
	Category Category `json:"category"`
	Score    float64  `json:"score"`
	Weight   float64  `json:"weight"`
	Events   int      `json:"events"`
	Severity float64  `json:"severity"`
}

type Summary struct {
	DurationMinutes float64 `json:"duration_minutes"`
	DistanceKM      float64 `json:"distance_km"`
	TotalEvents     int     `json:"total_events"`
	SignsDetected   int     `json:"signs_detected"`
	SignsAccepted   int     `json:"signs_accepted"`
	MaxSpeedKPH     float64 `json:"max_speed_kph"`
	AvgSpeedKPH     float64 `json:"avg_speed_kph"`
}

type Report struct {
	ID                 string                `json:"id"`
	TripID             string                `json:"trip_id,omitempty"`
	VehicleID          string                `json:"vehicle_id,omitempty"`
	GeneratedAt        time.Time             `json:"generated_at"`
	OverallScore       int                   `json:"overall_score"`
	Grade              string                `json:"grade"`
	RiskLevel          string                `json:"risk_level"`
	CategoryScores     []CategoryScore       `json:"category_scores"`
	EventCounts        map[EventType]int     `json:"event_counts"`
	EventRates         map[EventType]Rate    `json:"event_rates"`
	MaxSeverity        map[EventType]float64 `json:"max_severity"`
	LimitTimeline      []LimitInterval       `json:"limit_timeline"`
	ViolationIntervals []ViolationInterval   `json:"violation_intervals"`
	Recommendations    []string              `json:"recommendations"`
	Issues             []string              `json:"issues"`
	Summary            Summary               `json:"summary"`
	InsufficientData   bool                  `json:"insufficient_data"`
	Warnings           []string              `json:"warnings,omitempty"`
}

// Submission is a trip handed to the scoring pipeline by an ingest source.
type Submission struct {
	Trip       Trip      `json:"trip"`
	Source     string    `json:"source"`
	ReceivedAt time.Time `json:"received_at"`
}

func MPSToKPH(v float64) float64 {
	return v * 3.6
}

// VehicleSummary is a rolling view of one vehicle's scored trips.
type VehicleSummary struct {
	VehicleID       string    `json:"vehicle_id"`
	Trips           int       `json:"trips"`
	AvgScore        float64   `json:"avg_score"`
	MinScore        int       `json:"min_score"`
	LastScore       int       `json:"last_score"`
	LastGrade       string    `json:"last_grade"`
	TotalEvents     int       `json:"total_events"`
	TotalViolations int       `json:"total_violations"`
	LastTripID      string    `json:"last_trip_id"`
	UpdatedAt       time.Time `json:"updated_at"`
}
