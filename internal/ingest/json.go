package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"tripscore/internal/catalog"
	"tripscore/internal/model"
	"tripscore/internal/normalize"
)

var ErrInvalidPayload = errors.New("invalid trip payload")

// Stamp is a timestamp as sent by clients: an RFC3339 string, unix seconds or
// milliseconds, or seconds from the trip start.
type Stamp string

func (s *Stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Stamp(str)
		return nil
	}
	*s = Stamp(data)
	return nil
}

type TripPayload struct {
	ID             string             `json:"id"`
	TripID         string             `json:"trip_id"`
	VehicleID      string             `json:"vehicle_id"`
	StartTime      Stamp              `json:"start_time" validate:"required"`
	EndTime        Stamp              `json:"end_time" validate:"required"`
	DistanceM      *float64           `json:"distance_m" validate:"omitempty,gte=0"`
	SpeedUnit      string             `json:"speed_unit" validate:"omitempty,oneof=m/s mps kph km/h kmh mph"`
	Events         []EventPayload     `json:"events" validate:"dive"`
	Detections     []DetectionPayload `json:"detections" validate:"dive"`
	SignDetections []DetectionPayload `json:"sign_detections" validate:"dive"`
}

type EventPayload struct {
	Type         string   `json:"type" validate:"required_without=EventType"`
	EventType    string   `json:"event_type"`
	Timestamp    Stamp    `json:"timestamp" validate:"required"`
	Lat          *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon          *float64 `json:"lon" validate:"omitempty,longitude"`
	Speed        *float64 `json:"speed" validate:"omitempty,gte=0"`
	SpeedMS      *float64 `json:"speed_m_s" validate:"omitempty,gte=0"`
	Acceleration *float64 `json:"acceleration"`
	AccelMS2     *float64 `json:"accel_m_s2"`
	LateralAccel *float64 `json:"lateral_accel"`
}

type DetectionPayload struct {
	ClassID    *int               `json:"class_id" validate:"required_without=SignClass,omitempty,gte=0"`
	SignClass  string             `json:"sign_class"`
	Confidence *float64           `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Timestamp  Stamp              `json:"timestamp" validate:"required_without=TS"`
	TS         Stamp              `json:"ts"`
	BBox       *model.BoundingBox `json:"bbox"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func payloadValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeTrip parses and validates one trip payload. Sign class names are
// resolved through cat; numeric ids are checked later by the engine.
func DecodeTrip(data []byte, cat *catalog.Catalog) (model.Trip, error) {
	var p TripPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Trip{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p.Trip(cat)
}

// DecodeTrips accepts a single trip object or an array of them.
func DecodeTrips(data []byte, cat *catalog.Catalog) ([]model.Trip, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if trimmed[0] != '[' {
		trip, err := DecodeTrip(trimmed, cat)
		if err != nil {
			return nil, err
		}
		return []model.Trip{trip}, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out := make([]model.Trip, 0, len(list))
	for i, raw := range list {
		trip, err := DecodeTrip(raw, cat)
		if err != nil {
			return nil, fmt.Errorf("trip %d: %w", i, err)
		}
		out = append(out, trip)
	}
	return out, nil
}

func (p TripPayload) Trip(cat *catalog.Catalog) (model.Trip, error) {
	if err := payloadValidator().Struct(p); err != nil {
		return model.Trip{}, fmt.Errorf("%w: %s", ErrInvalidPayload, describe(err))
	}
	if cat == nil {
		cat = catalog.Default()
	}
	start, err := normalize.ParseTimestamp(string(p.StartTime), time.UTC)
	if err != nil {
		return model.Trip{}, fmt.Errorf("%w: start_time: %v", ErrInvalidPayload, err)
	}
	end, err := normalize.ParseTimestamp(string(p.EndTime), time.UTC)
	if err != nil {
		return model.Trip{}, fmt.Errorf("%w: end_time: %v", ErrInvalidPayload, err)
	}
	trip := model.Trip{
		ID:        firstNonEmpty(p.ID, p.TripID),
		VehicleID: strings.TrimSpace(p.VehicleID),
		StartTime: start,
		EndTime:   end,
	}
	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}
	if p.DistanceM != nil {
		trip.DistanceM = *p.DistanceM
	}

	trip.Events = make([]model.KinematicEvent, 0, len(p.Events))
	for i, ep := range p.Events {
		ev, err := ep.event(start, p.SpeedUnit)
		if err != nil {
			return model.Trip{}, fmt.Errorf("%w: events[%d]: %v", ErrInvalidPayload, i, err)
		}
		trip.Events = append(trip.Events, ev)
	}

	dets := append(append([]DetectionPayload(nil), p.Detections...), p.SignDetections...)
	trip.Detections = make([]model.RawDetection, 0, len(dets))
	for i, dp := range dets {
		det, err := dp.detection(start, cat)
		if err != nil {
			var unknown *catalog.UnknownSignClassError
			if errors.As(err, &unknown) {
				return model.Trip{}, err
			}
			return model.Trip{}, fmt.Errorf("%w: detections[%d]: %v", ErrInvalidPayload, i, err)
		}
		trip.Detections = append(trip.Detections, det)
	}
	return trip, nil
}

func (ep EventPayload) event(start time.Time, unit string) (model.KinematicEvent, error) {
	et, err := normalize.EventType(firstNonEmpty(ep.Type, ep.EventType))
	if err != nil {
		return model.KinematicEvent{}, err
	}
	ts, err := normalize.ResolveTime(string(ep.Timestamp), start, time.UTC)
	if err != nil {
		return model.KinematicEvent{}, err
	}
	ev := model.KinematicEvent{Type: et, Timestamp: ts, LateralAccel: ep.LateralAccel}
	if ep.Lat != nil && ep.Lon != nil {
		ev.Position = model.Position{Lat: *ep.Lat, Lon: *ep.Lon}
	}
	switch {
	case ep.SpeedMS != nil:
		ev.Speed = *ep.SpeedMS
	case ep.Speed != nil:
		if ev.Speed, err = normalize.SpeedMPS(*ep.Speed, unit); err != nil {
			return model.KinematicEvent{}, err
		}
	}
	switch {
	case ep.AccelMS2 != nil:
		ev.Acceleration = *ep.AccelMS2
	case ep.Acceleration != nil:
		ev.Acceleration = *ep.Acceleration
	}
	return ev, nil
}

func (dp DetectionPayload) detection(start time.Time, cat *catalog.Catalog) (model.RawDetection, error) {
	det := model.RawDetection{Confidence: 1.0, BBox: dp.BBox}
	if dp.Confidence != nil {
		det.Confidence = *dp.Confidence
	}
	if name := strings.TrimSpace(dp.SignClass); name != "" {
		entry, err := cat.Resolve(name)
		if err != nil {
			return model.RawDetection{}, err
		}
		det.ClassID = entry.ID
	} else if dp.ClassID != nil {
		det.ClassID = *dp.ClassID
	} else {
		return model.RawDetection{}, errors.New("class_id or sign_class is required")
	}
	ts, err := normalize.ResolveTime(string(firstStamp(dp.Timestamp, dp.TS)), start, time.UTC)
	if err != nil {
		return model.RawDetection{}, err
	}
	det.Timestamp = ts
	return det, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstStamp(values ...Stamp) Stamp {
	for _, v := range values {
		if strings.TrimSpace(string(v)) != "" {
			return v
		}
	}
	return ""
}
