// Package storage persists trip reports and their posted-limit violations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"tripscore/internal/config"
	"tripscore/internal/model"
)

var ErrNotFound = errors.New("report not found")

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveReport(ctx context.Context, rep model.Report) error
	// GetReport returns the newest report stored for a trip id or report id.
	GetReport(ctx context.Context, id string) (model.Report, error)
	// ListReports returns reports newest first; an empty vehicleID lists all.
	ListReports(ctx context.Context, vehicleID string, limit int) ([]model.Report, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// dialect covers the differences between drivers: placeholder syntax and
// how timestamps are bound.
type dialect struct {
	numbered bool
	bindTime func(time.Time) any
}

type baseStore struct {
	db      *sql.DB
	dialect dialect
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *baseStore) exec(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for drivers that need numbered ones.
func (b *baseStore) rebind(query string) string {
	if !b.dialect.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func (b *baseStore) SaveReport(ctx context.Context, rep model.Report) error {
	if b.db == nil {
		return nil
	}
	if rep.ID == "" {
		return errors.New("report id is required")
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, b.rebind(
		`INSERT INTO reports (id, trip_id, vehicle_id, generated_at, overall_score, grade, risk_level, insufficient_data, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			trip_id = excluded.trip_id,
			vehicle_id = excluded.vehicle_id,
			generated_at = excluded.generated_at,
			overall_score = excluded.overall_score,
			grade = excluded.grade,
			risk_level = excluded.risk_level,
			insufficient_data = excluded.insufficient_data,
			report_json = excluded.report_json`),
		rep.ID,
		rep.TripID,
		rep.VehicleID,
		b.dialect.bindTime(rep.GeneratedAt),
		rep.OverallScore,
		rep.Grade,
		rep.RiskLevel,
		rep.InsufficientData,
		string(data),
	); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, b.rebind(`DELETE FROM violations WHERE report_id = ?`), rep.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if len(rep.ViolationIntervals) > 0 {
		stmt, err := tx.PrepareContext(ctx, b.rebind(
			`INSERT INTO violations (report_id, trip_id, start_ts, end_ts, observed_kph, posted_kph, excess_kph, event_count, severity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		defer stmt.Close()
		for _, v := range rep.ViolationIntervals {
			if _, err := stmt.ExecContext(ctx,
				rep.ID,
				rep.TripID,
				b.dialect.bindTime(v.Start),
				b.dialect.bindTime(v.End),
				v.ObservedSpeedKPH,
				v.PostedLimitKPH,
				v.ExcessKPH,
				v.EventCount,
				v.Severity,
			); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}
	return tx.Commit()
}

func (b *baseStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	if b.db == nil {
		return model.Report{}, ErrNotFound
	}
	row := b.db.QueryRowContext(ctx, b.rebind(
		`SELECT report_json FROM reports WHERE id = ? OR trip_id = ? ORDER BY generated_at DESC LIMIT 1`), id, id)
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Report{}, ErrNotFound
		}
		return model.Report{}, err
	}
	return decodeReport(data)
}

func (b *baseStore) ListReports(ctx context.Context, vehicleID string, limit int) ([]model.Report, error) {
	if b.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT report_json FROM reports`
	args := make([]any, 0, 2)
	if vehicleID != "" {
		query += ` WHERE vehicle_id = ?`
		args = append(args, vehicleID)
	}
	query += ` ORDER BY generated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, b.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Report, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rep, err := decodeReport(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func decodeReport(data string) (model.Report, error) {
	var rep model.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return model.Report{}, fmt.Errorf("decode stored report: %w", err)
	}
	return rep, nil
}
