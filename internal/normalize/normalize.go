// Package normalize turns loosely formatted payload fields into model values.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tripscore/internal/model"
)

var eventAliases = map[string]model.EventType{
	"hard_brake":         model.EventHardBrake,
	"hard_braking":       model.EventHardBrake,
	"harsh_brake":        model.EventHardBrake,
	"harsh_braking":      model.EventHardBrake,
	"brake":              model.EventHardBrake,
	"overspeed":          model.EventOverspeed,
	"over_speed":         model.EventOverspeed,
	"speeding":           model.EventOverspeed,
	"harsh_accel":        model.EventHarshAccel,
	"harsh_acceleration": model.EventHarshAccel,
	"hard_accel":         model.EventHarshAccel,
	"rapid_accel":        model.EventHarshAccel,
	"unsafe_curve":       model.EventUnsafeCurve,
	"sharp_turn":         model.EventUnsafeCurve,
	"harsh_cornering":    model.EventUnsafeCurve,
	"cornering":          model.EventUnsafeCurve,
}

// EventType maps device event names onto the four canonical types.
func EventType(name string) (model.EventType, error) {
	key := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
	if t, ok := eventAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown event type %q", name)
}

// SpeedMPS converts a speed in the given unit to m/s. An empty unit means m/s.
func SpeedMPS(value float64, unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", "m/s", "mps", "m_s":
		return value, nil
	case "kph", "km/h", "kmh":
		return value / 3.6, nil
	case "mph":
		return value * 0.44704, nil
	}
	return 0, fmt.Errorf("unknown speed unit %q", unit)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

// relativeCutoff separates seconds-from-start offsets from unix seconds.
const relativeCutoff = 1e9

// ResolveTime parses an absolute timestamp or, when start is known and the
// value is a small number, an offset in seconds from start.
func ResolveTime(value string, start time.Time, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if !start.IsZero() {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && math.Abs(secs) < relativeCutoff {
			return Offset(start, secs), nil
		}
	}
	return ParseTimestamp(value, loc)
}

func Offset(start time.Time, secs float64) time.Time {
	return start.Add(time.Duration(math.Round(secs * float64(time.Second))))
}

// isNumeric accepts digits with at most one decimal point.
func isNumeric(value string) bool {
	dot := false
	digits := 0
	for _, ch := range value {
		switch {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

// parseUnix reads unix seconds, or milliseconds when the integer part has 13
// or more digits. Fractions are kept to the nanosecond.
func parseUnix(value string) (time.Time, error) {
	intPart, _, _ := strings.Cut(value, ".")
	if intPart == value {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		if len(value) >= 13 {
			return time.Unix(0, n*int64(time.Millisecond)).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return time.Time{}, err
	}
	unit := float64(time.Second)
	if len(intPart) >= 13 {
		unit = float64(time.Millisecond)
	}
	sec, frac := math.Modf(f)
	return time.Unix(0, 0).Add(time.Duration(sec * unit)).Add(time.Duration(math.Round(frac * unit))).UTC(), nil
}
