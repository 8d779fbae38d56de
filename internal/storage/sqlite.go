package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:tripscore.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{
		db: db,
		dialect: dialect{
			bindTime: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
		},
	}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			trip_id TEXT NOT NULL,
			vehicle_id TEXT NOT NULL,
			generated_at TEXT NOT NULL,
			overall_score INTEGER NOT NULL,
			grade TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			insufficient_data INTEGER NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_trip ON reports(trip_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_vehicle_ts ON reports(vehicle_id, generated_at)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			trip_id TEXT NOT NULL,
			start_ts TEXT NOT NULL,
			end_ts TEXT NOT NULL,
			observed_kph REAL NOT NULL,
			posted_kph INTEGER NOT NULL,
			excess_kph REAL NOT NULL,
			event_count INTEGER NOT NULL,
			severity REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_report ON violations(report_id)`,
	})
}
