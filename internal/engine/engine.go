package engine

import (
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/model"
)

// Engine scores closed trips. It holds no per-trip state: the catalog is
// read-only and the scoring config is swapped atomically, so Score may be
// called from any number of goroutines.
type Engine struct {
	catalog *catalog.Catalog
	cfg     atomic.Value
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

func New(cat *catalog.Catalog, cfg config.ScoringConfig, logger *slog.Logger) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	e := &Engine{
		catalog: cat,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.NewString() },
	}
	e.cfg.Store(cfg)
	return e
}

func (e *Engine) UpdateConfig(cfg config.ScoringConfig) {
	e.cfg.Store(cfg)
}

func (e *Engine) Config() config.ScoringConfig {
	if v := e.cfg.Load(); v != nil {
		return v.(config.ScoringConfig)
	}
	return config.DefaultScoring()
}

func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Score runs the full pipeline on one trip. Malformed trips and unknown sign
// classes abort with a typed error; empty streams produce a neutral report
// flagged as insufficient data.
func (e *Engine) Score(trip model.Trip) (model.Report, error) {
	cfg := e.Config()
	if err := ValidateTrip(trip); err != nil {
		return model.Report{}, err
	}
	dets, err := NormalizeDetections(trip.Detections, e.catalog, cfg.ConfidenceThreshold, cfg.DebounceWindow)
	if err != nil {
		return model.Report{}, err
	}

	events := append([]model.KinematicEvent(nil), trip.Events...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	trip.Events = events

	timeline := Reconstruct(dets, trip.StartTime, trip.EndTime, cfg.DefaultLimitKPH)
	agg := Aggregate(events, trip.DistanceM, trip.Duration(), cfg.Severity)
	violations := Correlate(timeline, events, cfg.OverspeedToleranceKPH, cfg.Severity.ViolationSevereExcessKPH)
	if insufficient(trip, dets) {
		cfg.FallbackRecommendation = ""
	}
	scores := ScoreTrip(agg, violations, cfg)

	rep := Assemble(Assembly{
		ID:          e.newID(),
		GeneratedAt: e.now(),
		Trip:        trip,
		Detections:  dets,
		Timeline:    timeline,
		Aggregates:  agg,
		Violations:  violations,
		Scores:      scores,
	})
	if e.logger != nil {
		e.logger.Debug("trip scored",
			"trip_id", trip.ID,
			"vehicle_id", trip.VehicleID,
			"score", rep.OverallScore,
			"events", len(events),
			"detections", len(dets),
			"limit_intervals", len(timeline),
			"violations", len(violations),
			"insufficient_data", rep.InsufficientData,
		)
	}
	return rep, nil
}
