package ingest

import (
	"context"
	"log/slog"
	"time"

	"tripscore/internal/model"
)

// SendNonBlocking hands a submission to the scoring queue, dropping it when
// the queue is full rather than stalling the ingest source.
func SendNonBlocking(ctx context.Context, out chan<- model.Submission, sub model.Submission, logger *slog.Logger) bool {
	select {
	case out <- sub:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("scoring queue full, dropping trip", "trip_id", sub.Trip.ID, "source", sub.Source)
		}
		return false
	}
}

func submission(trip model.Trip, source string) model.Submission {
	return model.Submission{Trip: trip, Source: source, ReceivedAt: time.Now().UTC()}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
