package engine

import (
	"math"
	"time"

	"tripscore/internal/config"
	"tripscore/internal/model"
)

// Aggregate tallies events per type. Rates use the caller supplied distance
// and duration and are zero when either is unknown.
func Aggregate(events []model.KinematicEvent, distanceM float64, duration time.Duration, sev config.SeverityConfig) model.Aggregates {
	agg := model.Aggregates{
		Counts:        make(map[model.EventType]int, len(model.EventTypes)),
		Rates:         make(map[model.EventType]model.Rate, len(model.EventTypes)),
		MaxSeverity:   make(map[model.EventType]float64, len(model.EventTypes)),
		TotalSeverity: make(map[model.EventType]float64, len(model.EventTypes)),
		DistanceKM:    distanceM / 1000,
		DurationHours: duration.Hours(),
	}
	for _, t := range model.EventTypes {
		agg.Counts[t] = 0
		agg.MaxSeverity[t] = 0
		agg.TotalSeverity[t] = 0
	}
	for _, ev := range events {
		s := EventSeverity(ev, sev)
		agg.Counts[ev.Type]++
		agg.TotalSeverity[ev.Type] += s
		if s > agg.MaxSeverity[ev.Type] {
			agg.MaxSeverity[ev.Type] = s
		}
	}
	for _, t := range model.EventTypes {
		var r model.Rate
		n := float64(agg.Counts[t])
		if agg.DistanceKM > 0 {
			r.PerKM = n / agg.DistanceKM
		}
		if agg.DurationHours > 0 {
			r.PerHour = n / agg.DurationHours
		}
		agg.Rates[t] = r
	}
	return agg
}

// EventSeverity maps an event to [0,1]. Braking and acceleration scale
// linearly with |a| up to the hard threshold; a zero acceleration is treated
// as unreported.
func EventSeverity(ev model.KinematicEvent, sev config.SeverityConfig) float64 {
	switch ev.Type {
	case model.EventHardBrake, model.EventHarshAccel:
		if ev.Acceleration == 0 {
			return clamp01(sev.DefaultEventSeverity)
		}
		return ratio(math.Abs(ev.Acceleration), sev.HardThresholdMPS2)
	case model.EventUnsafeCurve:
		if ev.LateralAccel == nil {
			return clamp01(sev.DefaultCurveSeverity)
		}
		return ratio(math.Abs(*ev.LateralAccel), sev.LateralThresholdMPS2)
	case model.EventOverspeed:
		if ev.Speed == 0 {
			return clamp01(sev.DefaultEventSeverity)
		}
		return ratio(ev.SpeedKPH()-sev.OverspeedReferenceKPH, sev.OverspeedSevereExcessKPH)
	}
	return 0
}

func ratio(v, full float64) float64 {
	if full <= 0 {
		return 0
	}
	return clamp01(v / full)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
