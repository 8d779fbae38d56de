package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

func fromKPH(v float64) float64 {
	return v / 3.6
}

func intPtr(v int) *int {
	return &v
}

func testScoring() config.ScoringConfig {
	return config.DefaultScoring()
}

func newEngineForTest(cfg config.ScoringConfig) *Engine {
	e := New(catalog.Default(), cfg, nil)
	e.now = func() time.Time { return base }
	e.newID = func() string { return "report-1" }
	return e
}

func tripFor(durationSec float64, events []model.KinematicEvent, dets []model.RawDetection) model.Trip {
	return model.Trip{
		ID:         "trip-1",
		VehicleID:  "car-1",
		StartTime:  base,
		EndTime:    at(durationSec),
		DistanceM:  1000,
		Events:     events,
		Detections: dets,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestPostedLimitViolation(t *testing.T) {
	eng := newEngineForTest(testScoring())
	trip := tripFor(60,
		[]model.KinematicEvent{{Type: model.EventOverspeed, Timestamp: at(10), Speed: fromKPH(80)}},
		[]model.RawDetection{{ClassID: 3, Confidence: 0.9, Timestamp: at(0)}},
	)
	rep, err := eng.Score(trip)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(rep.ViolationIntervals) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(rep.ViolationIntervals))
	}
	v := rep.ViolationIntervals[0]
	if !approx(v.ObservedSpeedKPH, 80) || v.PostedLimitKPH != 60 {
		t.Fatalf("unexpected violation %+v", v)
	}
	if !approx(v.ExcessKPH, 20) {
		t.Fatalf("expected excess 20, got %v", v.ExcessKPH)
	}
	if rep.EventCounts[model.EventOverspeed] != 1 {
		t.Fatalf("device overspeed must be counted separately")
	}
}

func TestDebounceCollapsesSameSign(t *testing.T) {
	raw := []model.RawDetection{
		{ClassID: 14, Confidence: 0.6, Timestamp: at(0)},
		{ClassID: 14, Confidence: 0.95, Timestamp: at(0.3)},
		{ClassID: 14, Confidence: 0.7, Timestamp: at(0.9)},
	}
	out, err := NormalizeDetections(raw, catalog.Default(), 0.5, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(out))
	}
	if !out[0].Timestamp.Equal(at(0)) || out[0].Confidence != 0.95 {
		t.Fatalf("unexpected detection %+v", out[0])
	}
	if out[0].ClassName != "stop" || out[0].IsSpeedLimit {
		t.Fatalf("catalog fields not applied: %+v", out[0])
	}
}

func TestNormalizeFiltersAndOrders(t *testing.T) {
	raw := []model.RawDetection{
		{ClassID: 5, Confidence: 0.8, Timestamp: at(4)},
		{ClassID: 2, Confidence: 0.3, Timestamp: at(1)},
		{ClassID: 14, Confidence: 0.9, Timestamp: at(2)},
		{ClassID: 3, Confidence: 0.9, Timestamp: at(2)},
		{ClassID: 14, Confidence: 0.9, Timestamp: at(3.6)},
	}
	out, err := NormalizeDetections(raw, catalog.Default(), 0.5, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []int{3, 14, 14, 5}
	if len(out) != len(want) {
		t.Fatalf("expected %d detections, got %d", len(want), len(out))
	}
	for i, id := range want {
		if out[i].ClassID != id {
			t.Fatalf("position %d: expected class %d, got %d", i, id, out[i].ClassID)
		}
	}
	if out[3].LimitKPH == nil || *out[3].LimitKPH != 80 {
		t.Fatalf("expected limit 80 on class 5")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	raw := make([]model.RawDetection, 0, 200)
	for i := 0; i < 200; i++ {
		raw = append(raw, model.RawDetection{
			ClassID:    rng.Intn(43),
			Confidence: rng.Float64(),
			Timestamp:  at(float64(rng.Intn(6000)) / 10),
			BBox:       &model.BoundingBox{X: rng.Float64(), Y: rng.Float64(), Width: 10, Height: 10},
		})
	}
	first, err := NormalizeDetections(raw, catalog.Default(), 0.5, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	second, err := NormalizeDetections(Raw(first), catalog.Default(), 0.5, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("normalize again: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize is not idempotent: %d vs %d detections", len(first), len(second))
	}
}

func TestUnknownSignClass(t *testing.T) {
	eng := newEngineForTest(testScoring())
	trip := tripFor(60, nil, []model.RawDetection{
		{ClassID: 3, Confidence: 0.9, Timestamp: at(1)},
		{ClassID: 99, Confidence: 0.1, Timestamp: at(2)},
	})
	_, err := eng.Score(trip)
	var unknown *catalog.UnknownSignClassError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSignClassError, got %v", err)
	}
	if unknown.ClassID != 99 {
		t.Fatalf("expected class 99, got %d", unknown.ClassID)
	}
}

func TestMalformedTrips(t *testing.T) {
	cases := map[string]model.Trip{
		"end before start": {StartTime: at(10), EndTime: at(0)},
		"event after end": tripFor(10, []model.KinematicEvent{
			{Type: model.EventHardBrake, Timestamp: at(11)},
		}, nil),
		"detection before start": tripFor(10, nil, []model.RawDetection{
			{ClassID: 1, Confidence: 0.9, Timestamp: at(-1)},
		}),
		"unknown event type": tripFor(10, []model.KinematicEvent{
			{Type: "drift", Timestamp: at(1)},
		}, nil),
		"confidence above one": tripFor(10, nil, []model.RawDetection{
			{ClassID: 1, Confidence: 1.5, Timestamp: at(1)},
		}),
		"negative distance": {StartTime: at(0), EndTime: at(1), DistanceM: -5},
	}
	eng := newEngineForTest(testScoring())
	for name, trip := range cases {
		_, err := eng.Score(trip)
		if !errors.Is(err, ErrMalformedTrip) {
			t.Fatalf("%s: expected malformed trip, got %v", name, err)
		}
		var mt *MalformedTripError
		if !errors.As(err, &mt) || mt.Reason == "" {
			t.Fatalf("%s: expected typed error with reason", name)
		}
	}
}

func TestEndOfAllLimitsClearsLimit(t *testing.T) {
	cfg := testScoring()
	cfg.DefaultLimitKPH = intPtr(50)
	eng := newEngineForTest(cfg)
	trip := tripFor(60,
		[]model.KinematicEvent{{Type: model.EventOverspeed, Timestamp: at(20), Speed: fromKPH(120)}},
		[]model.RawDetection{{ClassID: 32, Confidence: 0.9, Timestamp: at(5)}},
	)
	rep, err := eng.Score(trip)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(rep.ViolationIntervals) != 0 {
		t.Fatalf("expected no violations, got %d", len(rep.ViolationIntervals))
	}
	last := rep.LimitTimeline[len(rep.LimitTimeline)-1]
	if last.LimitKPH != nil || last.SetBy != "end_all_limits" {
		t.Fatalf("expected cleared limit, got %+v", last)
	}
}

func TestEmptyTripIsInsufficientData(t *testing.T) {
	eng := newEngineForTest(testScoring())
	rep, err := eng.Score(tripFor(600, nil, nil))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rep.OverallScore != 100 || !rep.InsufficientData {
		t.Fatalf("expected neutral flagged report, got score=%d insufficient=%v", rep.OverallScore, rep.InsufficientData)
	}
	if len(rep.CategoryScores) != len(model.Categories) {
		t.Fatalf("expected %d categories", len(model.Categories))
	}
	for _, cs := range rep.CategoryScores {
		if cs.Score != 100 {
			t.Fatalf("category %s: expected 100, got %v", cs.Category, cs.Score)
		}
	}
	if len(rep.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %v", rep.Recommendations)
	}
	if len(rep.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", rep.Warnings)
	}
	if rep.Grade != "A" || rep.RiskLevel != "low" || rep.ID != "report-1" {
		t.Fatalf("unexpected report header %+v", rep)
	}
}

func TestFilteredDetectionsStillScore(t *testing.T) {
	eng := newEngineForTest(testScoring())
	rep, err := eng.Score(tripFor(60, []model.KinematicEvent{
		{Type: model.EventHardBrake, Timestamp: at(3), Speed: 10, Acceleration: -2},
	}, []model.RawDetection{{ClassID: 2, Confidence: 0.1, Timestamp: at(1)}}))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rep.InsufficientData {
		t.Fatalf("events present, not insufficient")
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0] != warnNoDetections {
		t.Fatalf("unexpected warnings %v", rep.Warnings)
	}
	if rep.Summary.SignsDetected != 1 || rep.Summary.SignsAccepted != 0 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
}

func TestReconstructPartitionsTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cat := catalog.Default()
	for round := 0; round < 50; round++ {
		end := at(float64(1 + rng.Intn(600)))
		n := rng.Intn(30)
		raw := make([]model.RawDetection, 0, n)
		for i := 0; i < n; i++ {
			ts := base.Add(time.Duration(rng.Int63n(int64(end.Sub(base)) + 1)))
			raw = append(raw, model.RawDetection{ClassID: rng.Intn(43), Confidence: 1, Timestamp: ts})
		}
		dets, err := NormalizeDetections(raw, cat, 0.5, time.Second)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		var def *int
		if round%2 == 0 {
			def = intPtr(50)
		}
		intervals := Reconstruct(dets, base, end, def)
		if len(intervals) == 0 {
			t.Fatalf("round %d: no intervals", round)
		}
		if !intervals[0].Start.Equal(base) || !intervals[len(intervals)-1].End.Equal(end) {
			t.Fatalf("round %d: timeline does not cover trip", round)
		}
		for i, iv := range intervals {
			if iv.End.Before(iv.Start) {
				t.Fatalf("round %d: interval %d is inverted", round, i)
			}
			if i > 0 && !intervals[i-1].End.Equal(iv.Start) {
				t.Fatalf("round %d: gap or overlap before interval %d", round, i)
			}
		}
	}
}

func TestReconstructTransitions(t *testing.T) {
	cat := catalog.Default()
	raw := []model.RawDetection{
		{ClassID: 1, Confidence: 1, Timestamp: at(0)},
		{ClassID: 1, Confidence: 1, Timestamp: at(20)},
		{ClassID: 14, Confidence: 1, Timestamp: at(25)},
		{ClassID: 4, Confidence: 1, Timestamp: at(30)},
		{ClassID: 6, Confidence: 1, Timestamp: at(40)},
	}
	dets, err := NormalizeDetections(raw, cat, 0.5, time.Second)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	intervals := Reconstruct(dets, base, at(60), intPtr(50))
	want := []struct {
		start, end float64
		limit      int
	}{
		{0, 30, 30},
		{30, 40, 70},
		{40, 60, 50},
	}
	if len(intervals) != len(want) {
		t.Fatalf("expected %d intervals, got %d: %+v", len(want), len(intervals), intervals)
	}
	for i, w := range want {
		iv := intervals[i]
		if !iv.Start.Equal(at(w.start)) || !iv.End.Equal(at(w.end)) || iv.LimitKPH == nil || *iv.LimitKPH != w.limit {
			t.Fatalf("interval %d: got %+v", i, iv)
		}
	}
	if intervals[0].SetBy != "speed_limit_30" || intervals[2].SetBy != "end_speed_limit_80" {
		t.Fatalf("unexpected set_by: %q %q", intervals[0].SetBy, intervals[2].SetBy)
	}
}

func TestViolationsStayInsideOneInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cat := catalog.Default()
	limits := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 32}
	for round := 0; round < 30; round++ {
		raw := make([]model.RawDetection, 0, 10)
		for i := 0; i < 10; i++ {
			raw = append(raw, model.RawDetection{
				ClassID:    limits[rng.Intn(len(limits))],
				Confidence: 1,
				Timestamp:  at(float64(rng.Intn(300))),
			})
		}
		events := make([]model.KinematicEvent, 0, 100)
		for i := 0; i < 100; i++ {
			events = append(events, model.KinematicEvent{
				Type:      model.EventOverspeed,
				Timestamp: at(float64(i * 3)),
				Speed:     fromKPH(float64(20 + rng.Intn(120))),
			})
		}
		dets, err := NormalizeDetections(raw, cat, 0.5, time.Second)
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		intervals := Reconstruct(dets, base, at(300), intPtr(50))
		violations := Correlate(intervals, events, 5, 30)
		for _, v := range violations {
			containing := 0
			for i, iv := range intervals {
				last := i == len(intervals)-1
				if !v.Start.Before(iv.Start) && (v.End.Before(iv.End) || (last && v.End.Equal(iv.End))) {
					containing++
					if iv.LimitKPH == nil || *iv.LimitKPH != v.PostedLimitKPH {
						t.Fatalf("round %d: violation limit %d does not match interval", round, v.PostedLimitKPH)
					}
				}
			}
			if containing != 1 {
				t.Fatalf("round %d: violation %+v contained by %d intervals", round, v, containing)
			}
		}
	}
}

func TestCorrelateSplitsRuns(t *testing.T) {
	intervals := []model.LimitInterval{
		{Start: at(0), End: at(30), LimitKPH: intPtr(50)},
		{Start: at(30), End: at(60), LimitKPH: intPtr(80)},
	}
	events := []model.KinematicEvent{
		{Type: model.EventOverspeed, Timestamp: at(5), Speed: fromKPH(70)},
		{Type: model.EventOverspeed, Timestamp: at(10), Speed: fromKPH(90)},
		{Type: model.EventHardBrake, Timestamp: at(15), Speed: fromKPH(40)},
		{Type: model.EventOverspeed, Timestamp: at(20), Speed: fromKPH(60)},
		{Type: model.EventOverspeed, Timestamp: at(29), Speed: fromKPH(100)},
		{Type: model.EventOverspeed, Timestamp: at(31), Speed: fromKPH(100)},
		{Type: model.EventOverspeed, Timestamp: at(60), Speed: fromKPH(84)},
	}
	got := Correlate(intervals, events, 5, 30)
	if len(got) != 3 {
		t.Fatalf("expected 3 violations, got %d: %+v", len(got), got)
	}
	if got[0].EventCount != 2 || !approx(got[0].ObservedSpeedKPH, 90) || !got[0].End.Equal(at(10)) {
		t.Fatalf("first run wrong: %+v", got[0])
	}
	if !got[1].Start.Equal(at(20)) || !got[1].End.Equal(at(29)) || got[1].PostedLimitKPH != 50 {
		t.Fatalf("second run wrong: %+v", got[1])
	}
	if !got[2].Start.Equal(at(31)) || got[2].PostedLimitKPH != 80 || got[2].EventCount != 1 {
		t.Fatalf("third run wrong: %+v", got[2])
	}
	if !approx(got[2].Severity, 20.0/30.0) {
		t.Fatalf("unexpected severity %v", got[2].Severity)
	}
}

func TestAggregateRatesAndSeverity(t *testing.T) {
	lateral := 2.0
	events := []model.KinematicEvent{
		{Type: model.EventHardBrake, Timestamp: at(1), Acceleration: -2},
		{Type: model.EventHardBrake, Timestamp: at(2), Acceleration: -8},
		{Type: model.EventUnsafeCurve, Timestamp: at(3), LateralAccel: &lateral},
		{Type: model.EventUnsafeCurve, Timestamp: at(4)},
		{Type: model.EventHarshAccel, Timestamp: at(5)},
	}
	agg := Aggregate(events, 2000, 30*time.Minute, config.DefaultSeverity())
	if agg.Counts[model.EventHardBrake] != 2 || agg.Counts[model.EventOverspeed] != 0 {
		t.Fatalf("unexpected counts %v", agg.Counts)
	}
	if r := agg.Rates[model.EventHardBrake]; !approx(r.PerKM, 1) || !approx(r.PerHour, 4) {
		t.Fatalf("unexpected rate %+v", r)
	}
	if agg.MaxSeverity[model.EventHardBrake] != 1 || !approx(agg.TotalSeverity[model.EventHardBrake], 1.5) {
		t.Fatalf("unexpected braking severity")
	}
	if agg.MaxSeverity[model.EventUnsafeCurve] != 0.6 {
		t.Fatalf("expected default curve severity, got %v", agg.MaxSeverity[model.EventUnsafeCurve])
	}
	if agg.MaxSeverity[model.EventHarshAccel] != 0.5 {
		t.Fatalf("expected default event severity, got %v", agg.MaxSeverity[model.EventHarshAccel])
	}

	zero := Aggregate(events, 0, 0, config.DefaultSeverity())
	if r := zero.Rates[model.EventHardBrake]; r.PerKM != 0 || r.PerHour != 0 {
		t.Fatalf("expected zero rates, got %+v", r)
	}
}

func TestScoreMonotonicInSeverity(t *testing.T) {
	cfg := testScoring()
	for _, et := range model.EventTypes {
		prev := 101
		for _, sev := range []float64{0, 0.5, 1, 2, 5, 20} {
			agg := Aggregate(nil, 1000, time.Hour, cfg.Severity)
			agg.Counts[et] = 1
			agg.TotalSeverity[et] = sev
			got := ScoreTrip(agg, nil, cfg).Overall
			if got > prev {
				t.Fatalf("%s: score rose from %d to %d at severity %v", et, prev, got, sev)
			}
			prev = got
		}
	}
	prev := 101
	for _, sev := range []float64{0, 0.3, 1, 4, 10} {
		agg := Aggregate(nil, 1000, time.Hour, cfg.Severity)
		got := ScoreTrip(agg, []model.ViolationInterval{{Severity: sev}}, cfg).Overall
		if got > prev {
			t.Fatalf("sign compliance: score rose from %d to %d", prev, got)
		}
		prev = got
	}
}

func TestScoreBounds(t *testing.T) {
	cfg := testScoring()
	events := make([]model.KinematicEvent, 0, 400)
	for i := 0; i < 100; i++ {
		ts := at(float64(i))
		events = append(events,
			model.KinematicEvent{Type: model.EventHardBrake, Timestamp: ts, Acceleration: -9},
			model.KinematicEvent{Type: model.EventHarshAccel, Timestamp: ts, Acceleration: 9},
			model.KinematicEvent{Type: model.EventOverspeed, Timestamp: ts, Speed: fromKPH(160)},
			model.KinematicEvent{Type: model.EventUnsafeCurve, Timestamp: ts},
		)
	}
	eng := newEngineForTest(cfg)
	rep, err := eng.Score(tripFor(120, events, []model.RawDetection{{ClassID: 1, Confidence: 1, Timestamp: at(0)}}))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if rep.OverallScore != 0 {
		t.Fatalf("expected floor of 0, got %d", rep.OverallScore)
	}
	for _, cs := range rep.CategoryScores {
		if cs.Score < 0 || cs.Score > 100 {
			t.Fatalf("category %s out of range: %v", cs.Category, cs.Score)
		}
	}
	if rep.Grade != "F" || rep.RiskLevel != "high" {
		t.Fatalf("unexpected grade %s risk %s", rep.Grade, rep.RiskLevel)
	}
}

func TestRecommendationsWorstFirst(t *testing.T) {
	cfg := testScoring()
	agg := Aggregate(nil, 1000, time.Hour, cfg.Severity)
	agg.TotalSeverity[model.EventUnsafeCurve] = 3 // cornering 64
	agg.TotalSeverity[model.EventHardBrake] = 5   // braking 40
	got := ScoreTrip(agg, nil, cfg).Recommendations
	rules := cfg.Recommendations
	want := []string{rules[0].Message, rules[1].Message, rules[4].Message}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected recommendations:\n%v\nwant\n%v", got, want)
	}

	clean := ScoreTrip(Aggregate(nil, 1000, time.Hour, cfg.Severity), nil, cfg).Recommendations
	if len(clean) != 1 || clean[0] != cfg.FallbackRecommendation {
		t.Fatalf("expected fallback recommendation, got %v", clean)
	}
}

func TestCustomWeightsAtCallSite(t *testing.T) {
	cfg := testScoring()
	cfg.Weights = config.WeightsConfig{Braking: 100}
	agg := Aggregate(nil, 1000, time.Hour, cfg.Severity)
	agg.TotalSeverity[model.EventHardBrake] = 1
	agg.TotalSeverity[model.EventOverspeed] = 8
	if got := ScoreTrip(agg, nil, cfg).Overall; got != 88 {
		t.Fatalf("expected 88 with braking-only weights, got %d", got)
	}
}

func TestScoreBatchKeepsOrder(t *testing.T) {
	eng := newEngineForTest(testScoring())
	trips := []model.Trip{
		tripFor(60, nil, nil),
		{ID: "bad", StartTime: at(10), EndTime: at(0)},
		tripFor(60, []model.KinematicEvent{{Type: model.EventHardBrake, Timestamp: at(1), Acceleration: -4}}, nil),
	}
	trips[2].ID = "trip-3"
	results, err := eng.ScoreBatch(context.Background(), trips, 2)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Report.OverallScore != 100 {
		t.Fatalf("first result wrong: %+v", results[0])
	}
	if !errors.Is(results[1].Err, ErrMalformedTrip) {
		t.Fatalf("expected malformed error for second trip, got %v", results[1].Err)
	}
	if results[2].TripID != "trip-3" || results[2].Report.OverallScore >= 100 {
		t.Fatalf("third result wrong: %+v", results[2])
	}
}

func TestIssuesAndSummary(t *testing.T) {
	eng := newEngineForTest(testScoring())
	trip := tripFor(120, []model.KinematicEvent{
		{Type: model.EventHardBrake, Timestamp: at(5), Speed: fromKPH(40), Acceleration: -4},
		{Type: model.EventOverspeed, Timestamp: at(10), Speed: fromKPH(80)},
	}, []model.RawDetection{{ClassID: 2, Confidence: 0.9, Timestamp: at(0)}})
	rep, err := eng.Score(trip)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	want := []string{
		"Hard braking: 1 times",
		"Device overspeed alerts: 1 times",
		"Exceeded posted limit 1 times (max +30 km/h)",
	}
	if !reflect.DeepEqual(rep.Issues, want) {
		t.Fatalf("unexpected issues %v", rep.Issues)
	}
	if rep.Summary.MaxSpeedKPH != 80 || rep.Summary.AvgSpeedKPH != 60 || rep.Summary.DurationMinutes != 2 {
		t.Fatalf("unexpected summary %+v", rep.Summary)
	}
}

func TestConfidenceAtThresholdIsKept(t *testing.T) {
	raw := []model.RawDetection{
		{ClassID: 3, Confidence: 0.5, Timestamp: at(1)},
		{ClassID: 14, Confidence: 0.49, Timestamp: at(2)},
	}
	dets, err := NormalizeDetections(raw, catalog.Default(), 0.5, time.Second)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(dets) != 1 || dets[0].ClassID != 3 {
		t.Fatalf("expected only the detection at the threshold, got %+v", dets)
	}
}

func TestSpeedAtToleranceIsNotViolation(t *testing.T) {
	intervals := []model.LimitInterval{{Start: at(0), End: at(60), LimitKPH: intPtr(50)}}
	atLimit := []model.KinematicEvent{
		{Type: model.EventOverspeed, Timestamp: at(10), Speed: fromKPH(55)},
	}
	if got := Correlate(intervals, atLimit, 5, 30); len(got) != 0 {
		t.Fatalf("speed equal to limit plus tolerance flagged: %+v", got)
	}
	over := []model.KinematicEvent{
		{Type: model.EventOverspeed, Timestamp: at(10), Speed: fromKPH(56)},
	}
	if got := Correlate(intervals, over, 5, 30); len(got) != 1 {
		t.Fatalf("expected one violation above tolerance, got %+v", got)
	}
}

func TestSameInstantRevertMergesIntervals(t *testing.T) {
	raw := []model.RawDetection{
		{ClassID: 3, Confidence: 1, Timestamp: at(10)},
		{ClassID: 6, Confidence: 1, Timestamp: at(10)},
		{ClassID: 4, Confidence: 1, Timestamp: at(40)},
	}
	dets, err := NormalizeDetections(raw, catalog.Default(), 0.5, time.Second)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	intervals := Reconstruct(dets, base, at(60), intPtr(50))
	if len(intervals) != 2 {
		t.Fatalf("expected 2 intervals, got %d: %+v", len(intervals), intervals)
	}
	first := intervals[0]
	if !first.Start.Equal(base) || !first.End.Equal(at(40)) || first.LimitKPH == nil || *first.LimitKPH != 50 {
		t.Fatalf("first interval not merged: %+v", first)
	}
	if first.SetBy != setByDefault {
		t.Fatalf("merged interval lost its origin: %q", first.SetBy)
	}
	for i := 1; i < len(intervals); i++ {
		if sameLimit(intervals[i-1].LimitKPH, intervals[i].LimitKPH) {
			t.Fatalf("adjacent intervals %d and %d share a limit", i-1, i)
		}
	}

	events := []model.KinematicEvent{
		{Type: model.EventOverspeed, Timestamp: at(5), Speed: fromKPH(70)},
		{Type: model.EventOverspeed, Timestamp: at(15), Speed: fromKPH(72)},
	}
	if got := Correlate(intervals, events, 5, 30); len(got) != 1 || got[0].EventCount != 2 {
		t.Fatalf("expected one run across the merged interval, got %+v", got)
	}
}
