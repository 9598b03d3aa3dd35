package perimeter

import (
	"math"
	"strings"
	"testing"
	"time"

	"shifttrack/internal/model"
)

func testPerimeters() []model.Perimeter {
	return []model.Perimeter{
		{ID: "ward-a", Name: "Ward A", CenterLatitude: 40.7831, CenterLongitude: -73.9712, RadiusMeters: 500},
	}
}

func point(lat, lng float64) model.GeoPoint {
	return model.GeoPoint{Latitude: lat, Longitude: lng, ObservedAt: time.Now().UTC()}
}

func pointWithAccuracy(lat, lng, accuracy float64) model.GeoPoint {
	p := point(lat, lng)
	p.AccuracyMeters = &accuracy
	return p
}

func TestCheckLocationEmptyRegistry(t *testing.T) {
	r := NewRegistry(nil)
	check := r.CheckLocation(point(40.7831, -73.9712), DefaultCheckOptions())
	if check.IsWithin {
		t.Fatalf("empty registry reported within")
	}
	if !math.IsInf(check.DistanceMeters, 1) {
		t.Fatalf("distance: got %v, want +Inf", check.DistanceMeters)
	}
	if check.Reason != "no perimeters configured" {
		t.Fatalf("reason: %q", check.Reason)
	}
}

func TestCheckLocationAtCenter(t *testing.T) {
	r := NewRegistry(testPerimeters())
	check := r.CheckLocation(point(40.7831, -73.9712), DefaultCheckOptions())
	if !check.IsWithin {
		t.Fatalf("center not within: %s", check.Reason)
	}
	if check.DistanceMeters != 0 {
		t.Fatalf("distance at center: %v", check.DistanceMeters)
	}
	if check.Perimeter == nil || check.Perimeter.ID != "ward-a" {
		t.Fatalf("perimeter not matched")
	}
}

func TestCheckLocationFarOutside(t *testing.T) {
	r := NewRegistry(testPerimeters())
	check := r.CheckLocation(point(40.7484, -73.9857), DefaultCheckOptions())
	if check.IsWithin {
		t.Fatalf("point 4km away reported within")
	}
	if check.Perimeter == nil {
		t.Fatalf("nearest perimeter missing on outside result")
	}
	if !strings.Contains(check.Reason, "outside Ward A") {
		t.Fatalf("reason: %q", check.Reason)
	}
}

func TestAccuracyGating(t *testing.T) {
	r := NewRegistry(testPerimeters())
	opts := DefaultCheckOptions()

	rejected := r.CheckLocation(pointWithAccuracy(40.7831, -73.9712, 100), opts)
	if rejected.IsWithin {
		t.Fatalf("low-accuracy reading accepted")
	}
	if !math.IsInf(rejected.DistanceMeters, 1) {
		t.Fatalf("gated distance: %v", rejected.DistanceMeters)
	}
	if !strings.Contains(rejected.Reason, "accuracy") {
		t.Fatalf("reason: %q", rejected.Reason)
	}

	accepted := r.CheckLocation(pointWithAccuracy(40.7831, -73.9712, 10), opts)
	if !accepted.IsWithin {
		t.Fatalf("high-accuracy reading rejected: %s", accepted.Reason)
	}

	opts.RequireHighAccuracy = false
	ungated := r.CheckLocation(pointWithAccuracy(40.7831, -73.9712, 100), opts)
	if !ungated.IsWithin {
		t.Fatalf("gate disabled but reading rejected: %s", ungated.Reason)
	}
}

func TestAllowBuffer(t *testing.T) {
	r := NewRegistry([]model.Perimeter{
		{ID: "clinic", CenterLatitude: 40.7831, CenterLongitude: -73.9712, RadiusMeters: 100},
	})
	// ~120m due east of center
	p := point(40.7831, -73.96978)
	_, d, _ := r.ClosestPerimeter(p)
	if d <= 100 || d >= 150 {
		t.Fatalf("test point distance %v, want between 100 and 150", d)
	}

	opts := DefaultCheckOptions()
	if check := r.CheckLocation(p, opts); check.IsWithin {
		t.Fatalf("point beyond radius accepted without buffer")
	}
	opts.AllowBufferMeters = 50
	if check := r.CheckLocation(p, opts); !check.IsWithin {
		t.Fatalf("point within buffer rejected: %s", check.Reason)
	}
}

func TestNearestTieBreakFirstRegistered(t *testing.T) {
	// two perimeters with the same center are exactly equidistant from
	// every point
	r := NewRegistry([]model.Perimeter{
		{ID: "first", CenterLatitude: 40.7831, CenterLongitude: -73.9712, RadiusMeters: 300},
		{ID: "second", CenterLatitude: 40.7831, CenterLongitude: -73.9712, RadiusMeters: 500},
	})
	nearest, _, ok := r.ClosestPerimeter(point(40.7831, -73.9712))
	if !ok || nearest.ID != "first" {
		t.Fatalf("tie-break: got %q, want first", nearest.ID)
	}
}

func TestSetPerimetersReplacesWholesale(t *testing.T) {
	r := NewRegistry(testPerimeters())
	r.SetPerimeters([]model.Perimeter{
		{ID: "ward-b", CenterLatitude: 0, CenterLongitude: 0, RadiusMeters: 200},
	})
	nearest, _, ok := r.ClosestPerimeter(point(0, 0))
	if !ok || nearest.ID != "ward-b" {
		t.Fatalf("replacement not visible: %+v", nearest)
	}
	r.SetPerimeters(nil)
	if _, _, ok := r.ClosestPerimeter(point(0, 0)); ok {
		t.Fatalf("cleared registry still matches")
	}
}

func TestStatusFor(t *testing.T) {
	per := testPerimeters()[0]
	inside := StatusFor(point(40.7831, -73.9712), per)
	if !inside.IsInside || inside.DistanceFromCenter != 0 || inside.DistanceFromEdge != 500 {
		t.Fatalf("center status: %+v", inside)
	}
	outside := StatusFor(point(40.7484, -73.9857), per)
	if outside.IsInside {
		t.Fatalf("far point inside")
	}
	if outside.DistanceFromEdge >= 0 {
		t.Fatalf("edge margin should be negative outside: %v", outside.DistanceFromEdge)
	}
	if outside.DistanceFromCenter != 500-outside.DistanceFromEdge {
		t.Fatalf("edge/center mismatch: %+v", outside)
	}
}
