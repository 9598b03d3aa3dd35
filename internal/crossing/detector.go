package crossing

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"shifttrack/internal/model"
	"shifttrack/internal/notify"
	"shifttrack/internal/perimeter"
	"shifttrack/internal/storage"
)

// Options tune the monitoring path. Check is evaluated per observation;
// NotifyCooldown damps flapping at a perimeter boundary and DedupeWindow
// drops re-delivered observations from at-least-once transports. Both
// default to 0 (disabled).
type Options struct {
	Check          perimeter.CheckOptions
	NotifyCooldown time.Duration
	DedupeWindow   time.Duration
}

func DefaultOptions() Options {
	return Options{
		Check: perimeter.CheckOptions{
			RequireHighAccuracy:     false,
			AccuracyThresholdMeters: 100,
		},
	}
}

// Detector turns a stream of location observations into discrete enter/exit
// events by diffing consecutive containment results per subject. It is
// edge-triggered: steady presence inside or outside never re-fires, and the
// first observation for a subject only seeds state.
type Detector struct {
	logger   *slog.Logger
	registry *perimeter.Registry
	sink     notify.Sink
	store    storage.Store
	opts     atomic.Value // Options
	cooldown *Cooldown
	dedupe   *DedupeCache

	mu       sync.Mutex
	subjects map[string]bool
}

func NewDetector(registry *perimeter.Registry, sink notify.Sink, logger *slog.Logger, store storage.Store, opts Options) *Detector {
	d := &Detector{
		logger:   logger,
		registry: registry,
		sink:     sink,
		store:    store,
		cooldown: NewCooldown(),
		dedupe:   NewDedupeCache(),
		subjects: make(map[string]bool),
	}
	d.opts.Store(opts)
	return d
}

func (d *Detector) UpdateOptions(opts Options) {
	d.opts.Store(opts)
}

func (d *Detector) options() Options {
	if v := d.opts.Load(); v != nil {
		return v.(Options)
	}
	return DefaultOptions()
}

// Start consumes observations until the context is cancelled.
func (d *Detector) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				d.Observe(obs.SubjectID, obs.Point)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Observe folds one reading into the subject's containment state and reports
// the crossing event, if any. This is the background monitoring path: any
// panic while matching perimeters is suppressed so a bad reading cannot take
// the observation pipeline down.
func (d *Detector) Observe(subjectID string, point model.GeoPoint) (ev model.CrossingEvent, emitted bool) {
	defer func() {
		if r := recover(); r != nil {
			if d.logger != nil {
				d.logger.Error("crossing check panic suppressed", "subject_id", subjectID, "panic", r)
			}
			ev, emitted = model.CrossingEvent{}, false
		}
	}()

	if subjectID == "" {
		subjectID = "unknown"
	}
	opts := d.options()
	now := time.Now().UTC()
	if opts.DedupeWindow > 0 && d.dedupe.Seen(observationKey(subjectID, point), now, opts.DedupeWindow) {
		return model.CrossingEvent{}, false
	}
	// an accuracy-gated reading is unreliable in both directions, so it
	// neither emits nor updates state
	if opts.Check.RequireHighAccuracy && point.AccuracyMeters != nil && *point.AccuracyMeters > opts.Check.AccuracyThresholdMeters {
		return model.CrossingEvent{}, false
	}

	check := d.registry.CheckLocation(point, opts.Check)
	within := check.IsWithin

	d.mu.Lock()
	prev, known := d.subjects[subjectID]
	d.subjects[subjectID] = within
	d.mu.Unlock()

	if !known || prev == within {
		return model.CrossingEvent{}, false
	}
	if opts.NotifyCooldown > 0 && !d.cooldown.Allow(subjectID, opts.NotifyCooldown) {
		return model.CrossingEvent{}, false
	}

	kind := model.CrossingEnter
	if !within {
		kind = model.CrossingExit
	}
	event := model.CrossingEvent{
		Kind:      kind,
		SubjectID: subjectID,
		Timestamp: now,
		Location:  point,
		Perimeter: check.Perimeter,
	}
	if d.sink != nil {
		d.sink.Publish(event)
	}
	if d.store != nil {
		if err := d.store.SaveCrossing(context.Background(), event); err != nil && d.logger != nil {
			d.logger.Warn("save crossing failed", "subject_id", subjectID, "err", err)
		}
	}
	if d.logger != nil {
		perimeterID := ""
		if event.Perimeter != nil {
			perimeterID = event.Perimeter.ID
		}
		d.logger.Info("perimeter crossing", "subject_id", subjectID, "kind", string(kind), "perimeter_id", perimeterID)
	}
	return event, true
}

// Reset drops all tracked subject state. The next observation per subject
// seeds containment again without emitting.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.subjects = make(map[string]bool)
	d.mu.Unlock()
	d.cooldown = NewCooldown()
	d.dedupe = NewDedupeCache()
}
