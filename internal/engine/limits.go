package engine

import (
	"sort"
	"time"

	"tripscore/internal/catalog"
	"tripscore/internal/model"
)

const setByDefault = "default"

// Reconstruct replays detections into a piecewise-constant posted limit
// timeline. The intervals partition [start, end]: each interval ends where the
// next begins and the last one ends at end. A nil limit means no enforceable
// numeric limit.
func Reconstruct(dets []model.NormalizedDetection, start, end time.Time, defaultLimit *int) []model.LimitInterval {
	ordered := append([]model.NormalizedDetection(nil), dets...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	out := make([]model.LimitInterval, 0, 4)
	current := copyLimit(defaultLimit)
	setBy := setByDefault
	open := start

	apply := func(ts time.Time, next *int, by string) {
		if sameLimit(current, next) {
			return
		}
		if ts.After(open) {
			out = append(out, model.LimitInterval{Start: open, End: ts, LimitKPH: current, SetBy: setBy})
			open = ts
		} else if n := len(out); n > 0 && sameLimit(out[n-1].LimitKPH, next) {
			// same-instant change back to the previous limit: extend that interval
			prev := out[n-1]
			out = out[:n-1]
			open, current, setBy = prev.Start, prev.LimitKPH, prev.SetBy
			return
		}
		current = next
		setBy = by
	}

	for _, d := range ordered {
		if d.Timestamp.Before(start) || d.Timestamp.After(end) {
			continue
		}
		switch catalog.Kind(d.Effect) {
		case catalog.KindLimit:
			if d.LimitKPH != nil {
				apply(d.Timestamp, copyLimit(d.LimitKPH), d.ClassName)
			}
		case catalog.KindEndLimit:
			apply(d.Timestamp, copyLimit(defaultLimit), d.ClassName)
		case catalog.KindEndAllLimits:
			apply(d.Timestamp, nil, d.ClassName)
		}
	}
	out = append(out, model.LimitInterval{Start: open, End: end, LimitKPH: current, SetBy: setBy})
	return out
}

func sameLimit(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
