package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"shifttrack/internal/config"
	"shifttrack/internal/model"
)

// Store is the durable mirror of clock decisions and crossing events. The
// in-memory ledger remains the source of truth for decision-making; these
// writes happen after a transition commits and their failure never rolls a
// decision back.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveClockEvent(ctx context.Context, event model.ClockEvent) error
	SaveShift(ctx context.Context, shift model.Shift) error
	SaveCrossing(ctx context.Context, event model.CrossingEvent) error
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
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
