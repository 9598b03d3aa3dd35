package perimeter

import (
	"fmt"
	"math"
	"sync/atomic"

	"shifttrack/internal/geo"
	"shifttrack/internal/model"
)

// CheckOptions control how a location reading is matched against the active
// perimeter set.
type CheckOptions struct {
	// AllowBufferMeters widens every perimeter radius by a grace margin.
	AllowBufferMeters float64
	// RequireHighAccuracy rejects readings whose reported accuracy radius
	// exceeds AccuracyThresholdMeters. Readings without a reported accuracy
	// are never rejected.
	RequireHighAccuracy     bool
	AccuracyThresholdMeters float64
}

func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		RequireHighAccuracy:     true,
		AccuracyThresholdMeters: 50,
	}
}

// Registry holds the current set of work-area perimeters. The set is replaced
// wholesale on reconfiguration; readers always observe either the old set or
// the new one.
type Registry struct {
	set atomic.Value // []model.Perimeter
}

func NewRegistry(perimeters []model.Perimeter) *Registry {
	r := &Registry{}
	r.SetPerimeters(perimeters)
	return r
}

func (r *Registry) SetPerimeters(perimeters []model.Perimeter) {
	set := make([]model.Perimeter, len(perimeters))
	copy(set, perimeters)
	r.set.Store(set)
}

func (r *Registry) Perimeters() []model.Perimeter {
	set := r.perimeters()
	out := make([]model.Perimeter, len(set))
	copy(out, set)
	return out
}

func (r *Registry) perimeters() []model.Perimeter {
	if v := r.set.Load(); v != nil {
		return v.([]model.Perimeter)
	}
	return nil
}

// CheckLocation matches a reading against the nearest perimeter. The accuracy
// gate short-circuits before any distance math. On exact distance ties the
// first-registered perimeter wins.
func (r *Registry) CheckLocation(point model.GeoPoint, opts CheckOptions) model.PerimeterCheck {
	if opts.RequireHighAccuracy && point.AccuracyMeters != nil && *point.AccuracyMeters > opts.AccuracyThresholdMeters {
		return model.PerimeterCheck{
			DistanceMeters: math.Inf(1),
			Reason: fmt.Sprintf("location accuracy %.0fm exceeds the %.0fm threshold, reading rejected",
				*point.AccuracyMeters, opts.AccuracyThresholdMeters),
		}
	}

	nearest, distance, ok := r.ClosestPerimeter(point)
	if !ok {
		return model.PerimeterCheck{
			DistanceMeters: math.Inf(1),
			Reason:         "no perimeters configured",
		}
	}

	effective := nearest.RadiusMeters + opts.AllowBufferMeters
	within := distance <= effective
	state := "outside"
	if within {
		state = "within"
	}
	reason := fmt.Sprintf("%s %s: %s from center, allowed radius %s",
		state, nearest.Label(), geo.FormatDistance(distance), geo.FormatDistance(effective))
	return model.PerimeterCheck{
		IsWithin:       within,
		DistanceMeters: distance,
		Perimeter:      &nearest,
		Reason:         reason,
	}
}

// ClosestPerimeter returns the perimeter whose center is nearest to the
// point, regardless of containment. ok is false when no perimeters are
// registered.
func (r *Registry) ClosestPerimeter(point model.GeoPoint) (nearest model.Perimeter, distance float64, ok bool) {
	set := r.perimeters()
	if len(set) == 0 {
		return model.Perimeter{}, math.Inf(1), false
	}
	nearest = set[0]
	distance = geo.DistanceMeters(point.Latitude, point.Longitude, set[0].CenterLatitude, set[0].CenterLongitude)
	for _, p := range set[1:] {
		// strict less-than keeps the first-registered perimeter on ties
		if d := geo.DistanceMeters(point.Latitude, point.Longitude, p.CenterLatitude, p.CenterLongitude); d < distance {
			nearest = p
			distance = d
		}
	}
	return nearest, distance, true
}

// Status describes a point relative to one specific perimeter.
// DistanceFromEdge is positive inside the boundary, negative outside.
type Status struct {
	IsInside           bool    `json:"is_inside"`
	DistanceFromEdge   float64 `json:"distance_from_edge"`
	DistanceFromCenter float64 `json:"distance_from_center"`
}

func StatusFor(point model.GeoPoint, p model.Perimeter) Status {
	center := geo.DistanceMeters(point.Latitude, point.Longitude, p.CenterLatitude, p.CenterLongitude)
	return Status{
		IsInside:           center <= p.RadiusMeters,
		DistanceFromEdge:   p.RadiusMeters - center,
		DistanceFromCenter: center,
	}
}
