package model

import "time"

type ClockKind string

const (
	ClockIn  ClockKind = "clock_in"
	ClockOut ClockKind = "clock_out"
)

type ShiftStatus string

const (
	ShiftActive    ShiftStatus = "active"
	ShiftCompleted ShiftStatus = "completed"
)

type CrossingKind string

const (
	CrossingEnter CrossingKind = "enter"
	CrossingExit  CrossingKind = "exit"
)

// GeoPoint is a single location reading. AccuracyMeters is nil when the
// provider cannot report accuracy.
type GeoPoint struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty"`
	ObservedAt     time.Time `json:"observed_at"`
}

// Observation is a reading attributed to a tracked subject, as delivered by
// a location provider feed.
type Observation struct {
	SubjectID string   `json:"subject_id"`
	Point     GeoPoint `json:"point"`
	Source    string   `json:"source,omitempty"`
	Raw       string   `json:"raw,omitempty"`
}

// Perimeter is a named circular work-area boundary.
type Perimeter struct {
	ID              string  `json:"id"`
	Name            string  `json:"name,omitempty"`
	CenterLatitude  float64 `json:"center_latitude"`
	CenterLongitude float64 `json:"center_longitude"`
	RadiusMeters    float64 `json:"radius_meters"`
}

func (p Perimeter) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// PerimeterCheck is the transient result of matching a point against the
// active perimeter set. DistanceMeters is +Inf when no distance was
// computable (empty set or rejected reading).
type PerimeterCheck struct {
	IsWithin       bool       `json:"is_within"`
	DistanceMeters float64    `json:"distance_meters"`
	Perimeter      *Perimeter `json:"perimeter,omitempty"`
	Reason         string     `json:"reason"`
}

type ClockValidation struct {
	LocationValid  bool    `json:"location_valid"`
	DistanceMeters float64 `json:"distance_meters"`
	AccuracyMeters float64 `json:"accuracy_meters"`
	Reason         string  `json:"reason"`
}

// ClockEvent is one clock-in or clock-out, immutable once recorded.
// Location is nil for administrative closes where no reading was available.
type ClockEvent struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Kind        ClockKind       `json:"kind"`
	Timestamp   time.Time       `json:"timestamp"`
	Location    *GeoPoint       `json:"location,omitempty"`
	Note        string          `json:"note,omitempty"`
	PerimeterID string          `json:"perimeter_id,omitempty"`
	Validation  ClockValidation `json:"validation"`
}

// Shift is one clock-in/clock-out cycle. ClockOut and TotalHours are set
// exactly once, when the shift completes.
type Shift struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	ClockIn    ClockEvent  `json:"clock_in"`
	ClockOut   *ClockEvent `json:"clock_out,omitempty"`
	Status     ShiftStatus `json:"status"`
	TotalHours *float64    `json:"total_hours,omitempty"`
}

// CrossingEvent is an edge-triggered containment transition for a subject.
// Perimeter is the nearest perimeter at the time of the crossing.
type CrossingEvent struct {
	Kind      CrossingKind `json:"kind"`
	SubjectID string       `json:"subject_id"`
	Timestamp time.Time    `json:"timestamp"`
	Location  GeoPoint     `json:"location"`
	Perimeter *Perimeter   `json:"perimeter,omitempty"`
}
