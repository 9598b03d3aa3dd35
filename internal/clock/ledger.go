package clock

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shifttrack/internal/history"
	"shifttrack/internal/model"
	"shifttrack/internal/storage"
)

type ErrorKind string

const (
	ErrAlreadyClockedIn ErrorKind = "ALREADY_CLOCKED_IN"
	ErrNotClockedIn     ErrorKind = "NOT_CLOCKED_IN"
	ErrLocationInvalid  ErrorKind = "LOCATION_INVALID"
	ErrSystem           ErrorKind = "SYSTEM_ERROR"
)

// Result carries the outcome of a clock operation. Message is suitable for
// direct display; Kind is what automated callers branch on.
type Result struct {
	OK      bool         `json:"ok"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Message string       `json:"message"`
	Shift   *model.Shift `json:"shift,omitempty"`
}

func failure(kind ErrorKind, message string) Result {
	return Result{Kind: kind, Message: message}
}

// Ledger owns the per-user shift state machine: no shift, one active shift,
// back to none on clock-out. The active map is the source of truth for
// decisions; history and durable storage are downstream mirrors written
// after a transition commits.
type Ledger struct {
	logger  *slog.Logger
	gate    *Gate
	history *history.Store
	store   storage.Store

	mu     sync.Mutex
	active map[string]*model.Shift
}

func NewLedger(gate *Gate, logger *slog.Logger, historyStore *history.Store, store storage.Store) *Ledger {
	return &Ledger{
		logger:  logger,
		gate:    gate,
		history: historyStore,
		store:   store,
		active:  make(map[string]*model.Shift),
	}
}

// ClockIn opens a shift. The active-shift check, gate validation and shift
// creation happen under one lock so concurrent attempts for the same user
// cannot both succeed.
func (l *Ledger) ClockIn(userID string, point model.GeoPoint, note string) Result {
	if userID == "" {
		return failure(ErrSystem, "user id is required")
	}
	l.mu.Lock()
	if _, ok := l.active[userID]; ok {
		l.mu.Unlock()
		return failure(ErrAlreadyClockedIn, "an active shift already exists for this user")
	}
	decision := l.gate.Validate(point, model.ClockIn)
	if !decision.Allowed {
		l.mu.Unlock()
		return failure(ErrLocationInvalid, decision.Reason)
	}
	loc := point
	event := model.ClockEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       model.ClockIn,
		Timestamp:  time.Now().UTC(),
		Location:   &loc,
		Note:       note,
		Validation: validationFrom(decision),
	}
	if decision.Perimeter != nil {
		event.PerimeterID = decision.Perimeter.ID
	}
	shift := &model.Shift{
		ID:      uuid.NewString(),
		UserID:  userID,
		ClockIn: event,
		Status:  model.ShiftActive,
	}
	l.active[userID] = shift
	out := *shift
	l.mu.Unlock()

	l.record(event, nil)
	if l.logger != nil {
		l.logger.Info("clock in", "user_id", userID, "shift_id", out.ID, "perimeter_id", event.PerimeterID)
	}
	return Result{OK: true, Message: decision.Reason, Shift: &out}
}

// ClockOut closes the user's active shift. Location never blocks the close;
// the gate result is recorded for audit only.
func (l *Ledger) ClockOut(userID string, point model.GeoPoint, note string) Result {
	loc := point
	return l.close(userID, &loc, note)
}

// ForceClockOut is the administrative override. The acting manager is
// recorded in the event note; lastKnown may be nil when no reading for the
// worker is available, in which case the event carries no location.
func (l *Ledger) ForceClockOut(userID, managerID, reason string, lastKnown *model.GeoPoint) Result {
	note := fmt.Sprintf("forced clock-out by manager %s", managerID)
	if reason != "" {
		note += ": " + reason
	}
	res := l.close(userID, lastKnown, note)
	if res.OK && l.logger != nil {
		l.logger.Warn("forced clock out", "user_id", userID, "manager_id", managerID, "reason", reason)
	}
	return res
}

func (l *Ledger) close(userID string, point *model.GeoPoint, note string) Result {
	if userID == "" {
		return failure(ErrSystem, "user id is required")
	}
	l.mu.Lock()
	shift, ok := l.active[userID]
	if !ok {
		l.mu.Unlock()
		return failure(ErrNotClockedIn, "no active shift exists for this user")
	}
	var decision Decision
	if point != nil {
		decision = l.gate.Validate(*point, model.ClockOut)
	} else {
		decision = Decision{
			Allowed:        true,
			Reason:         "clock-out allowed: no location reported",
			DistanceMeters: math.Inf(1),
		}
	}
	now := time.Now().UTC()
	event := model.ClockEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       model.ClockOut,
		Timestamp:  now,
		Location:   point,
		Note:       note,
		Validation: validationFrom(decision),
	}
	if decision.Perimeter != nil {
		event.PerimeterID = decision.Perimeter.ID
	}
	hours := now.Sub(shift.ClockIn.Timestamp).Hours()
	shift.ClockOut = &event
	shift.TotalHours = &hours
	shift.Status = model.ShiftCompleted
	delete(l.active, userID)
	out := *shift
	l.mu.Unlock()

	l.record(event, &out)
	if l.logger != nil {
		l.logger.Info("clock out", "user_id", userID, "shift_id", out.ID, "total_hours", hours)
	}
	return Result{OK: true, Message: decision.Reason, Shift: &out}
}

func (l *Ledger) ActiveShift(userID string) (model.Shift, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.active[userID]; ok {
		return *s, true
	}
	return model.Shift{}, false
}

func (l *Ledger) AllActiveShifts() []model.Shift {
	l.mu.Lock()
	out := make([]model.Shift, 0, len(l.active))
	for _, s := range l.active {
		out = append(out, *s)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ClockIn.Timestamp.Before(out[j].ClockIn.Timestamp)
	})
	return out
}

func (l *Ledger) IsClockedIn(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.active[userID]
	return ok
}

type Duration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// CurrentDuration reports time worked so far on the user's active shift,
// against the wall clock.
func (l *Ledger) CurrentDuration(userID string) (Duration, bool) {
	l.mu.Lock()
	shift, ok := l.active[userID]
	if !ok {
		l.mu.Unlock()
		return Duration{}, false
	}
	start := shift.ClockIn.Timestamp
	l.mu.Unlock()
	elapsed := time.Since(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return Duration{
		Hours:   int(elapsed.Hours()),
		Minutes: int(elapsed.Minutes()) % 60,
	}, true
}

// record mirrors a committed transition to history and durable storage. The
// in-memory decision already stands; a failed write is logged and never
// rolls the clock state back.
func (l *Ledger) record(event model.ClockEvent, completed *model.Shift) {
	if l.history != nil {
		l.history.AddEvent(event)
		if completed != nil {
			l.history.AddShift(*completed)
		}
	}
	if l.store == nil {
		return
	}
	ctx := context.Background()
	if err := l.store.SaveClockEvent(ctx, event); err != nil && l.logger != nil {
		l.logger.Error("save clock event failed", "event_id", event.ID, "err", err)
	}
	if completed != nil {
		if err := l.store.SaveShift(ctx, *completed); err != nil && l.logger != nil {
			l.logger.Error("save shift failed", "shift_id", completed.ID, "err", err)
		}
	}
}

func validationFrom(d Decision) model.ClockValidation {
	dist := d.DistanceMeters
	// JSON cannot carry +Inf; -1 marks "no distance computable"
	if math.IsInf(dist, 0) {
		dist = -1
	}
	return model.ClockValidation{
		LocationValid:  d.WithinPerimeter,
		DistanceMeters: dist,
		AccuracyMeters: d.AccuracyMeters,
		Reason:         d.Reason,
	}
}
