package engine

import (
	"errors"
	"fmt"
	"math"

	"tripscore/internal/model"
)

var ErrMalformedTrip = errors.New("malformed trip")

// MalformedTripError rejects a whole trip; no partial report is produced.
type MalformedTripError struct {
	Reason string
}

func (e *MalformedTripError) Error() string {
	return "malformed trip: " + e.Reason
}

func (e *MalformedTripError) Unwrap() error {
	return ErrMalformedTrip
}

func malformed(format string, args ...any) error {
	return &MalformedTripError{Reason: fmt.Sprintf(format, args...)}
}

func ValidateTrip(trip model.Trip) error {
	if trip.StartTime.IsZero() || trip.EndTime.IsZero() {
		return malformed("start_time and end_time are required")
	}
	if trip.EndTime.Before(trip.StartTime) {
		return malformed("end_time %s before start_time %s", trip.EndTime.Format(timeLayout), trip.StartTime.Format(timeLayout))
	}
	if math.IsNaN(trip.DistanceM) || trip.DistanceM < 0 {
		return malformed("distance_m must be a non-negative number")
	}
	for i, ev := range trip.Events {
		if !ev.Type.Valid() {
			return malformed("events[%d]: unknown event type %q", i, ev.Type)
		}
		if !within(trip, ev) {
			return malformed("events[%d]: timestamp %s outside trip", i, ev.Timestamp.Format(timeLayout))
		}
		if math.IsNaN(ev.Speed) || math.IsInf(ev.Speed, 0) || ev.Speed < 0 {
			return malformed("events[%d]: invalid speed", i)
		}
		if math.IsNaN(ev.Acceleration) || math.IsInf(ev.Acceleration, 0) {
			return malformed("events[%d]: invalid acceleration", i)
		}
		if ev.LateralAccel != nil && (math.IsNaN(*ev.LateralAccel) || math.IsInf(*ev.LateralAccel, 0)) {
			return malformed("events[%d]: invalid lateral acceleration", i)
		}
	}
	for i, d := range trip.Detections {
		if d.Timestamp.Before(trip.StartTime) || d.Timestamp.After(trip.EndTime) {
			return malformed("detections[%d]: timestamp %s outside trip", i, d.Timestamp.Format(timeLayout))
		}
		if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
			return malformed("detections[%d]: confidence %v outside [0,1]", i, d.Confidence)
		}
	}
	return nil
}

func within(trip model.Trip, ev model.KinematicEvent) bool {
	return !ev.Timestamp.Before(trip.StartTime) && !ev.Timestamp.After(trip.EndTime)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
