package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"shifttrack/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:shifttrack.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clock_events (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			perimeter_id TEXT,
			note TEXT,
			location_json TEXT,
			validation_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clock_events_user_ts ON clock_events(user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS shifts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			clock_in_ts TEXT NOT NULL,
			clock_out_ts TEXT,
			total_hours REAL,
			clock_in_json TEXT NOT NULL,
			clock_out_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shifts_user ON shifts(user_id)`,
		`CREATE TABLE IF NOT EXISTS crossings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			perimeter_id TEXT,
			location_json TEXT NOT NULL
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

func (s *sqliteStore) SaveClockEvent(ctx context.Context, event model.ClockEvent) error {
	if s.db == nil {
		return nil
	}
	var location any
	if event.Location != nil {
		location = encodeJSON(event.Location)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clock_events (id, ts, user_id, kind, perimeter_id, note, location_json, validation_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveShift(ctx context.Context, shift model.Shift) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			clock_out_ts = excluded.clock_out_ts,
			total_hours = excluded.total_hours,
			clock_out_json = excluded.clock_out_json`,
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

func (s *sqliteStore) SaveCrossing(ctx context.Context, event model.CrossingEvent) error {
	if s.db == nil {
		return nil
	}
	perimeterID := ""
	if event.Perimeter != nil {
		perimeterID = event.Perimeter.ID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crossings (ts, subject_id, kind, perimeter_id, location_json)
		VALUES (?, ?, ?, ?, ?)`,
		event.Timestamp.UTC(),
		event.SubjectID,
		string(event.Kind),
		perimeterID,
		encodeJSON(event.Location),
	)
	return err
}
