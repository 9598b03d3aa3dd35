package clock

import (
	"fmt"
	"sync/atomic"

	"shifttrack/internal/model"
	"shifttrack/internal/perimeter"
)

// Gate decides whether a clock operation is permitted from a given location.
type Gate struct {
	registry *perimeter.Registry
	opts     atomic.Value // perimeter.CheckOptions
}

func NewGate(registry *perimeter.Registry, opts perimeter.CheckOptions) *Gate {
	g := &Gate{registry: registry}
	g.opts.Store(opts)
	return g
}

func (g *Gate) UpdateOptions(opts perimeter.CheckOptions) {
	g.opts.Store(opts)
}

func (g *Gate) options() perimeter.CheckOptions {
	if v := g.opts.Load(); v != nil {
		return v.(perimeter.CheckOptions)
	}
	return perimeter.DefaultCheckOptions()
}

// Decision is the outcome of validating one clock operation.
// WithinPerimeter reports the geometric result even when the operation is
// allowed regardless of it.
type Decision struct {
	Allowed         bool
	WithinPerimeter bool
	Reason          string
	Perimeter       *model.Perimeter
	DistanceMeters  float64
	AccuracyMeters  float64
}

// Validate applies the gate policy. Clock-in requires containment; clock-out
// is always allowed so a worker can end a shift after leaving the work area,
// with the perimeter result recorded for audit. An unknown kind is a
// programming error and panics.
func (g *Gate) Validate(point model.GeoPoint, kind model.ClockKind) Decision {
	check := g.registry.CheckLocation(point, g.options())
	d := Decision{
		WithinPerimeter: check.IsWithin,
		Perimeter:       check.Perimeter,
		DistanceMeters:  check.DistanceMeters,
	}
	if point.AccuracyMeters != nil {
		d.AccuracyMeters = *point.AccuracyMeters
	}
	switch kind {
	case model.ClockIn:
		d.Allowed = check.IsWithin
		if check.IsWithin {
			d.Reason = "clock-in allowed: " + check.Reason
		} else {
			d.Reason = "clock-in denied: " + check.Reason
		}
	case model.ClockOut:
		d.Allowed = true
		d.Reason = "clock-out allowed: " + check.Reason
	default:
		panic(fmt.Sprintf("clock: invalid operation kind %q", kind))
	}
	return d
}
