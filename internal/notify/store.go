package notify

import (
	"sync"
	"time"

	"shifttrack/internal/model"
)

// Sink receives crossing events. How (or whether) an event turns into a user
// notification is the sink's concern; the detector only emits.
type Sink interface {
	Publish(ev model.CrossingEvent)
}

// Store is a bounded buffer of recent crossing events. It implements Sink so
// it can stand beside or in place of a real delivery channel, and backs the
// audit API.
type Store struct {
	mu    sync.RWMutex
	buf   []model.CrossingEvent
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Publish(ev model.CrossingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, ev)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = ev
}

func (s *Store) List(limit int) []model.CrossingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.CrossingEvent, limit)
	copy(out, s.buf[len(s.buf)-limit:])
	return out
}

func (s *Store) Since(ts time.Time) []model.CrossingEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CrossingEvent, 0)
	for _, ev := range s.buf {
		if !ev.Timestamp.Before(ts) {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
