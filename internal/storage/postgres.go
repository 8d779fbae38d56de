package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/tripscore?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{
		db: db,
		dialect: dialect{
			numbered: true,
			bindTime: func(t time.Time) any { return t.UTC() },
		},
	}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.exec(ctx, []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			trip_id TEXT NOT NULL,
			vehicle_id TEXT NOT NULL,
			generated_at TIMESTAMPTZ NOT NULL,
			overall_score INTEGER NOT NULL,
			grade TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			insufficient_data BOOLEAN NOT NULL,
			report_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_trip ON reports(trip_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_vehicle_ts ON reports(vehicle_id, generated_at)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id BIGSERIAL PRIMARY KEY,
			report_id TEXT NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
			trip_id TEXT NOT NULL,
			start_ts TIMESTAMPTZ NOT NULL,
			end_ts TIMESTAMPTZ NOT NULL,
			observed_kph DOUBLE PRECISION NOT NULL,
			posted_kph INTEGER NOT NULL,
			excess_kph DOUBLE PRECISION NOT NULL,
			event_count INTEGER NOT NULL,
			severity DOUBLE PRECISION NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_violations_report ON violations(report_id)`,
	})
}
