package history

import (
	"sync"

	"shifttrack/internal/model"
)

// Store is a bounded in-memory record of completed shifts and clock events,
// serving the manager and analytics surfaces. Durable storage is a separate
// concern; this buffer only backs the live API.
type Store struct {
	mu     sync.RWMutex
	shifts []model.Shift
	events []model.ClockEvent
	limit  int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{limit: limit}
}

func (s *Store) AddEvent(ev model.ClockEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) < s.limit {
		s.events = append(s.events, ev)
		return
	}
	copy(s.events, s.events[1:])
	s.events[len(s.events)-1] = ev
}

func (s *Store) AddShift(shift model.Shift) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.shifts) < s.limit {
		s.shifts = append(s.shifts, shift)
		return
	}
	copy(s.shifts, s.shifts[1:])
	s.shifts[len(s.shifts)-1] = shift
}

// Shifts returns up to limit most recent completed shifts, oldest first.
func (s *Store) Shifts(limit int) []model.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.shifts) {
		limit = len(s.shifts)
	}
	out := make([]model.Shift, limit)
	copy(out, s.shifts[len(s.shifts)-limit:])
	return out
}

func (s *Store) Events(limit int) []model.ClockEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]model.ClockEvent, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out
}

func (s *Store) UserShifts(userID string, limit int) []model.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Shift, 0)
	for _, shift := range s.shifts {
		if shift.UserID == userID {
			out = append(out, shift)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// TotalHours sums the recorded hours of the user's completed shifts held in
// the buffer.
func (s *Store) TotalHours(userID string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0.0
	for _, shift := range s.shifts {
		if shift.UserID == userID && shift.TotalHours != nil {
			total += *shift.TotalHours
		}
	}
	return total
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts = nil
	s.events = nil
}
