package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripscore/internal/model"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tripscore version dev")
}

func TestCatalogCommand(t *testing.T) {
	out, err := run(t, "catalog", "--speed-limits")
	require.NoError(t, err)
	assert.Contains(t, out, "speed_limit_60")
	assert.Contains(t, out, "end_all_limits")
	assert.NotContains(t, out, "stop")
}

func TestScoreCommand(t *testing.T) {
	dir := t.TempDir()
	trip := `{"trip_id":"cli-1","vehicle_id":"car","start_time":"2026-03-01T09:00:00Z","end_time":"2026-03-01T09:05:00Z",
		"events":[{"type":"overspeed","timestamp":30,"speed_m_s":25}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trip.json"), []byte(trip), 0o644))
	extra := filepath.Join(dir, "signs.csv")
	require.NoError(t, os.WriteFile(extra, []byte("ts,class_id,confidence\n5,2,0.9\n"), 0o644))

	out, err := run(t, "score", "--detections", extra, filepath.Join(dir, "trip.json"))
	require.NoError(t, err)

	var rep model.Report
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "cli-1", rep.TripID)
	require.Len(t, rep.ViolationIntervals, 1)
	assert.Equal(t, 50, rep.ViolationIntervals[0].PostedLimitKPH)
}

func TestScoreCommandFailsOnMalformedTrip(t *testing.T) {
	dir := t.TempDir()
	trip := `{"trip_id":"bad","start_time":"2026-03-01T09:05:00Z","end_time":"2026-03-01T09:00:00Z"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(trip), 0o644))
	_, err := run(t, "score", filepath.Join(dir, "bad.json"))
	assert.Error(t, err)
}
