package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shifttrack/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/shifttrack?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clock_events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			perimeter_id TEXT,
			note TEXT,
			location_json JSONB,
			validation_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clock_events_user_ts ON clock_events(user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			clock_in_ts TIMESTAMPTZ NOT NULL,
			clock_out_ts TIMESTAMPTZ,
			total_hours DOUBLE PRECISION,
			clock_in_json JSONB NOT NULL,
			clock_out_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_user ON shifts(user_id)`,
		`CREATE TABLE IF NOT EXISTS crossings (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			subject_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			perimeter_id TEXT,
			location_json JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crossings_ts ON crossings(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveClockEvent(ctx context.Context, event model.ClockEvent) error {
	if s.db == nil {
		return nil
	}
	var location any
	if event.Location != nil {
		location = encodeJSON(event.Location)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clock_events (id, ts, user_id, kind, perimeter_id, note, location_json, validation_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID,
		event.Timestamp.UTC(),
		event.UserID,
		string(event.Kind),
		event.PerimeterID,
		event.Note,
		location,
		encodeJSON(event.Validation),
	)
	return err
}

func (s *postgresStore) SaveShift(ctx context.Context, shift model.Shift) error {
	if s.db == nil {
		return nil
	}
	var outTS, hours, outJSON any
	if shift.ClockOut != nil {
		outTS = shift.ClockOut.Timestamp.UTC()
		outJSON = encodeJSON(shift.ClockOut)
	}
	if shift.TotalHours != nil {
		hours = *shift.TotalHours
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO shifts (id, user_id, status, clock_in_ts, clock_out_ts, total_hours, clock_in_json, clock_out_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			clock_out_ts = EXCLUDED.clock_out_ts,
			total_hours = EXCLUDED.total_hours,
			clock_out_json = EXCLUDED.clock_out_json`,
		shift.ID,
		shift.UserID,
		string(shift.Status),
		shift.ClockIn.Timestamp.UTC(),
		outTS,
		hours,
		encodeJSON(shift.ClockIn),
		outJSON,
	)
	return err
}

func (s *postgresStore) SaveCrossing(ctx context.Context, event model.CrossingEvent) error {
	if s.db == nil {
		return nil
	}
	perimeterID := ""
	if event.Perimeter != nil {
		perimeterID = event.Perimeter.ID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crossings (ts, subject_id, kind, perimeter_id, location_json)
		VALUES ($1, $2, $3, $4, $5)`,
		event.Timestamp.UTC(),
		event.SubjectID,
		string(event.Kind),
		perimeterID,
		encodeJSON(event.Location),
	)
	return err
}
