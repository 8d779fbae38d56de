package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/engine"
	"tripscore/internal/metrics"
	"tripscore/internal/model"
	"tripscore/internal/reports"
	"tripscore/internal/storage"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleTrip(id string) model.Trip {
	return model.Trip{
		ID:        id,
		VehicleID: "van-1",
		StartTime: start,
		EndTime:   start.Add(10 * time.Minute),
		DistanceM: 6000,
		Events: []model.KinematicEvent{
			{Type: model.EventHardBrake, Timestamp: start.Add(time.Minute), Speed: 12, Acceleration: -5},
		},
		Detections: []model.RawDetection{
			{ClassID: 3, Confidence: 0.9, Timestamp: start.Add(5 * time.Second)},
		},
	}
}

func newPipeline(t *testing.T, guard *Guard) (*Pipeline, *reports.Store, *metrics.Store, storage.Store) {
	t.Helper()
	st, err := storage.NewSQLite("file:" + filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Init(context.Background()))

	rs := reports.NewStore(10)
	vs := metrics.NewStore(10)
	eng := engine.New(catalog.Default(), config.DefaultScoring(), nil)
	return New(eng, rs, vs, st, guard, nil), rs, vs, st
}

func TestProcessFansOut(t *testing.T) {
	p, rs, vs, st := newPipeline(t, nil)
	ctx := context.Background()

	rep, err := p.Process(ctx, model.Submission{Trip: sampleTrip("t-1"), Source: "rest"})
	require.NoError(t, err)
	assert.Equal(t, "t-1", rep.TripID)

	got, ok := rs.Get("t-1")
	require.True(t, ok)
	assert.Equal(t, rep.ID, got.ID)

	sum, ok := vs.Get("van-1")
	require.True(t, ok)
	assert.Equal(t, 1, sum.Trips)

	stored, err := st.GetReport(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, rep.OverallScore, stored.OverallScore)
}

func TestProcessRejectsMalformed(t *testing.T) {
	p, rs, _, _ := newPipeline(t, NewGuard(time.Minute))
	trip := sampleTrip("bad")
	trip.EndTime = trip.StartTime.Add(-time.Second)

	_, err := p.Process(context.Background(), model.Submission{Trip: trip, Source: "kafka"})
	assert.ErrorIs(t, err, engine.ErrMalformedTrip)
	assert.Equal(t, "malformed", Outcome(err))
	assert.Equal(t, 0, rs.Len())

	// a failed trip does not hold the guard
	_, err = p.Process(context.Background(), model.Submission{Trip: sampleTrip("bad"), Source: "kafka"})
	assert.NoError(t, err)
}

func TestProcessSkipsDuplicates(t *testing.T) {
	p, rs, _, _ := newPipeline(t, NewGuard(time.Minute))
	ctx := context.Background()

	_, err := p.Process(ctx, model.Submission{Trip: sampleTrip("t-1"), Source: "spool"})
	require.NoError(t, err)
	_, err = p.Process(ctx, model.Submission{Trip: sampleTrip("t-1"), Source: "rest"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, rs.Len())
}

func TestStartDrainsQueue(t *testing.T) {
	p, rs, _, _ := newPipeline(t, nil)
	in := make(chan model.Submission, 3)
	for _, id := range []string{"a", "b", "c"} {
		in <- model.Submission{Trip: sampleTrip(id), Source: "rest"}
	}
	close(in)

	wg := p.Start(context.Background(), in, 2)
	wg.Wait()
	assert.Equal(t, 3, rs.Len())
}

func TestGuardCooldown(t *testing.T) {
	g := NewGuard(time.Minute)
	now := start
	g.now = func() time.Time { return now }

	assert.True(t, g.Allow("t"))
	assert.False(t, g.Allow("t"))
	assert.True(t, g.Allow("other"))

	now = now.Add(time.Minute)
	assert.True(t, g.Allow("t"))

	g.Forget("t")
	assert.True(t, g.Allow("t"))

	assert.True(t, NewGuard(0).Allow("t"))
	var nilGuard *Guard
	assert.True(t, nilGuard.Allow("t"))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "unknown_sign", Outcome(&catalog.UnknownSignClassError{ClassID: 99}))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}
