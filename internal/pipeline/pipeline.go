// Package pipeline drains trip submissions through the scoring engine and
// fans finished reports out to the in-memory stores, metrics and storage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tripscore/internal/catalog"
	"tripscore/internal/engine"
	"tripscore/internal/metrics"
	"tripscore/internal/model"
	"tripscore/internal/reports"
	"tripscore/internal/storage"
)

var ErrDuplicate = errors.New("trip already scored recently")

type Pipeline struct {
	engine   *engine.Engine
	reports  *reports.Store
	vehicles *metrics.Store
	store    storage.Store
	guard    *Guard
	logger   *slog.Logger
}

// New wires a pipeline. Any of the stores may be nil.
func New(eng *engine.Engine, reportsStore *reports.Store, vehicles *metrics.Store, store storage.Store, guard *Guard, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		engine:   eng,
		reports:  reportsStore,
		vehicles: vehicles,
		store:    store,
		guard:    guard,
		logger:   logger,
	}
}

// Start runs workers goroutines until in is closed or ctx is done. The
// returned WaitGroup completes when every worker has exited.
func (p *Pipeline) Start(ctx context.Context, in <-chan model.Submission, workers int) *sync.WaitGroup {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case sub, ok := <-in:
					if !ok {
						return
					}
					metrics.QueueDepth.Set(float64(len(in)))
					_, _ = p.Process(ctx, sub)
				}
			}
		}()
	}
	if p.logger != nil {
		p.logger.Info("scoring workers started", "workers", workers)
	}
	return &wg
}

// Process scores one submission and records the outcome.
func (p *Pipeline) Process(ctx context.Context, sub model.Submission) (model.Report, error) {
	source := sub.Source
	if source == "" {
		source = "unknown"
	}
	if !p.guard.Allow(sub.Trip.ID) {
		metrics.TripsScored.WithLabelValues(source, "duplicate").Inc()
		if p.logger != nil {
			p.logger.Info("duplicate trip skipped", "trip_id", sub.Trip.ID, "source", source)
		}
		return model.Report{}, fmt.Errorf("%w: %s", ErrDuplicate, sub.Trip.ID)
	}

	started := time.Now()
	rep, err := p.engine.Score(sub.Trip)
	metrics.ScoringDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		p.guard.Forget(sub.Trip.ID)
		metrics.TripsScored.WithLabelValues(source, Outcome(err)).Inc()
		if p.logger != nil {
			p.logger.Warn("trip scoring failed", "trip_id", sub.Trip.ID, "source", source, "err", err)
		}
		return model.Report{}, err
	}
	metrics.TripsScored.WithLabelValues(source, "ok").Inc()
	metrics.Observe(rep)

	if p.reports != nil {
		p.reports.Add(rep)
	}
	if p.vehicles != nil {
		p.vehicles.Update(rep)
	}
	if p.store != nil {
		if err := p.store.SaveReport(ctx, rep); err != nil && p.logger != nil {
			p.logger.Error("report persist failed", "report_id", rep.ID, "trip_id", rep.TripID, "err", err)
		}
	}
	if p.logger != nil {
		p.logger.Info("trip scored",
			"trip_id", rep.TripID,
			"vehicle_id", rep.VehicleID,
			"source", source,
			"score", rep.OverallScore,
			"grade", rep.Grade,
			"violations", len(rep.ViolationIntervals),
		)
	}
	return rep, nil
}

// Outcome classifies a scoring error for the trips_scored metric.
func Outcome(err error) string {
	var malformed *engine.MalformedTripError
	var unknown *catalog.UnknownSignClassError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &unknown):
		return "unknown_sign"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	}
	return "error"
}
