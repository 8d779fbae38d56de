package engine

import (
	"sort"

	"tripscore/internal/model"
)

// Correlate flags runs of consecutive events whose speed exceeds the posted
// limit by more than toleranceKPH. Runs never cross an interval boundary and
// intervals without a numeric limit never produce violations. This is
// independent of the device's own overspeed events.
func Correlate(intervals []model.LimitInterval, events []model.KinematicEvent, toleranceKPH, severeExcessKPH float64) []model.ViolationInterval {
	ordered := append([]model.KinematicEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	out := make([]model.ViolationInterval, 0)
	next := 0
	for i, iv := range intervals {
		last := i == len(intervals)-1
		for next < len(ordered) && ordered[next].Timestamp.Before(iv.Start) {
			next++
		}
		var run *model.ViolationInterval
		flush := func() {
			if run != nil {
				run.ExcessKPH = run.ObservedSpeedKPH - float64(run.PostedLimitKPH)
				run.Severity = ratio(run.ExcessKPH, severeExcessKPH)
				out = append(out, *run)
				run = nil
			}
		}
		for next < len(ordered) {
			ev := ordered[next]
			inside := ev.Timestamp.Before(iv.End) || (last && ev.Timestamp.Equal(iv.End))
			if !inside {
				break
			}
			next++
			if iv.LimitKPH == nil {
				continue
			}
			posted := *iv.LimitKPH
			kph := ev.SpeedKPH()
			if kph <= float64(posted)+toleranceKPH {
				flush()
				continue
			}
			if run == nil {
				run = &model.ViolationInterval{Start: ev.Timestamp, PostedLimitKPH: posted}
			}
			run.End = ev.Timestamp
			run.EventCount++
			if kph > run.ObservedSpeedKPH {
				run.ObservedSpeedKPH = kph
			}
		}
		flush()
	}
	return out
}
