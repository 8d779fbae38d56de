package engine

import (
	"sort"
	"time"

	"tripscore/internal/catalog"
	"tripscore/internal/model"
)

// debouncer tracks, per class, the accepted detection that later frames of
// the same physical sign collapse into.
type debouncer struct {
	window time.Duration
	anchor map[int]int
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window, anchor: make(map[int]int)}
}

// group returns the index of the accepted detection ts falls within, if any.
func (d *debouncer) group(out []model.NormalizedDetection, classID int, ts time.Time) (int, bool) {
	idx, ok := d.anchor[classID]
	if !ok {
		return 0, false
	}
	if ts.Sub(out[idx].Timestamp) <= d.window {
		return idx, true
	}
	return 0, false
}

func (d *debouncer) accept(classID, idx int) {
	d.anchor[classID] = idx
}

// NormalizeDetections drops detections below threshold and collapses frames
// of the same class within window of an accepted detection. Every class is
// resolved against cat first, including detections that are filtered out.
func NormalizeDetections(raw []model.RawDetection, cat *catalog.Catalog, threshold float64, window time.Duration) ([]model.NormalizedDetection, error) {
	entries := make(map[int]catalog.Entry)
	kept := make([]model.RawDetection, 0, len(raw))
	for _, det := range raw {
		if _, ok := entries[det.ClassID]; !ok {
			entry, err := cat.Lookup(det.ClassID)
			if err != nil {
				return nil, err
			}
			entries[det.ClassID] = entry
		}
		if det.Confidence < threshold {
			continue
		}
		kept = append(kept, det)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Timestamp.Equal(kept[j].Timestamp) {
			return kept[i].ClassID < kept[j].ClassID
		}
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})

	out := make([]model.NormalizedDetection, 0, len(kept))
	deb := newDebouncer(window)
	for _, det := range kept {
		if idx, ok := deb.group(out, det.ClassID, det.Timestamp); ok {
			if det.Confidence > out[idx].Confidence {
				out[idx].Confidence = det.Confidence
				out[idx].BBox = copyBBox(det.BBox)
			}
			continue
		}
		entry := entries[det.ClassID]
		out = append(out, model.NormalizedDetection{
			ClassID:      det.ClassID,
			ClassName:    entry.Name,
			Confidence:   det.Confidence,
			Timestamp:    det.Timestamp,
			BBox:         copyBBox(det.BBox),
			IsSpeedLimit: entry.IsSpeedLimit(),
			LimitKPH:     copyLimit(entry.LimitKPH),
			Effect:       string(entry.Kind),
		})
		deb.accept(det.ClassID, len(out)-1)
	}
	return out, nil
}

// Raw converts normalized detections back into raw input form.
func Raw(dets []model.NormalizedDetection) []model.RawDetection {
	out := make([]model.RawDetection, 0, len(dets))
	for _, d := range dets {
		out = append(out, model.RawDetection{
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			Timestamp:  d.Timestamp,
			BBox:       copyBBox(d.BBox),
		})
	}
	return out
}

func copyBBox(b *model.BoundingBox) *model.BoundingBox {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

func copyLimit(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
