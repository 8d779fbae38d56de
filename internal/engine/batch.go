package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tripscore/internal/model"
)

// BatchResult pairs a trip's report with its scoring error, if any.
type BatchResult struct {
	TripID string
	Report model.Report
	Err    error
}

// ScoreBatch scores trips in parallel on at most workers goroutines. Results
// keep input order. One failing trip does not abort the others; only context
// cancellation stops the batch.
func (e *Engine) ScoreBatch(ctx context.Context, trips []model.Trip, workers int) ([]BatchResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]BatchResult, len(trips))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := e.Score(trips[i])
			results[i] = BatchResult{TripID: trips[i].ID, Report: rep, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
