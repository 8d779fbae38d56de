package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tripscore/internal/catalog"
	"tripscore/internal/model"
	"tripscore/internal/normalize"
)

// ReadDetectionsCSV reads detections exported frame by frame by the vision
// model. The first row is a header; timestamps may be absolute or seconds from
// start. The class column takes either a numeric id or a sign class name.
func ReadDetectionsCSV(r io.Reader, start time.Time, cat *catalog.Catalog) ([]model.RawDetection, error) {
	if cat == nil {
		cat = catalog.Default()
	}
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	cols := normalizeHeader(header)
	if _, ok := column(cols, "timestamp", "ts", "time"); !ok {
		return nil, fmt.Errorf("%w: csv header missing timestamp column", ErrInvalidPayload)
	}
	if _, ok := column(cols, "class_id", "sign_class", "class"); !ok {
		return nil, fmt.Errorf("%w: csv header missing class column", ErrInvalidPayload)
	}

	out := make([]model.RawDetection, 0, 64)
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if blank(record) {
			continue
		}
		det, err := parseDetectionRecord(cols, record, start, cat)
		if err != nil {
			var unknown *catalog.UnknownSignClassError
			if errors.As(err, &unknown) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidPayload, line, err)
		}
		out = append(out, det)
	}
}

func parseDetectionRecord(cols map[string]int, record []string, start time.Time, cat *catalog.Catalog) (model.RawDetection, error) {
	get := func(names ...string) string {
		if i, ok := column(cols, names...); ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}
	det := model.RawDetection{Confidence: 1.0}
	ts, err := normalize.ResolveTime(get("timestamp", "ts", "time"), start, time.UTC)
	if err != nil {
		return det, err
	}
	det.Timestamp = ts

	class := get("class_id", "sign_class", "class")
	if id, err := strconv.Atoi(class); err == nil {
		det.ClassID = id
	} else {
		entry, err := cat.Resolve(class)
		if err != nil {
			return det, err
		}
		det.ClassID = entry.ID
	}

	if v := get("confidence", "conf", "score"); v != "" {
		if det.Confidence, err = strconv.ParseFloat(v, 64); err != nil {
			return det, fmt.Errorf("confidence: %w", err)
		}
	}
	if x := get("x"); x != "" {
		var box model.BoundingBox
		vals := []*float64{&box.X, &box.Y, &box.Width, &box.Height}
		for i, v := range []string{x, get("y"), get("width", "w"), get("height", "h")} {
			if *vals[i], err = strconv.ParseFloat(v, 64); err != nil {
				return det, fmt.Errorf("bbox: %w", err)
			}
		}
		det.BBox = &box
	}
	return det, nil
}

func normalizeHeader(record []string) map[string]int {
	out := make(map[string]int, len(record))
	for i, v := range record {
		out[strings.ToLower(strings.TrimSpace(v))] = i
	}
	return out
}

func column(cols map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := cols[n]; ok {
			return i, true
		}
	}
	return 0, false
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
