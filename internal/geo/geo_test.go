package geo

import (
	"math"
	"testing"
)

func TestDistanceIdenticalPoints(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{40.7831, -73.9712},
		{-89.9, 179.9},
	}
	for _, p := range points {
		if d := DistanceMeters(p[0], p[1], p[0], p[1]); d != 0 {
			t.Fatalf("distance for identical point (%v,%v): got %v, want 0", p[0], p[1], d)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	d1 := DistanceMeters(40.7831, -73.9712, 40.7484, -73.9857)
	d2 := DistanceMeters(40.7484, -73.9857, 40.7831, -73.9712)
	if d1 != d2 {
		t.Fatalf("asymmetric distance: %v vs %v", d1, d2)
	}
}

func TestDistanceKnownSeparation(t *testing.T) {
	// Central Park to the Empire State Building, roughly 4km
	d := DistanceMeters(40.7831, -73.9712, 40.7484, -73.9857)
	if d < 3500 || d > 4500 {
		t.Fatalf("unexpected distance: %v", d)
	}
}

func TestDistanceAcrossAntimeridian(t *testing.T) {
	// 0.2 degrees of longitude apart at the equator, on opposite sides of
	// the 180 meridian. A naive longitude difference would report nearly
	// the full circumference.
	d := DistanceMeters(0, 179.9, 0, -179.9)
	if d > 30000 {
		t.Fatalf("antimeridian wraparound: %v", d)
	}
	if d < 20000 {
		t.Fatalf("distance too small: %v", d)
	}
}

func TestDistanceNearAntipodal(t *testing.T) {
	d := DistanceMeters(0, 0, 0, 180)
	if math.IsNaN(d) {
		t.Fatalf("NaN distance at antipode")
	}
	half := math.Pi * EarthRadiusMeters
	if math.Abs(d-half) > 1000 {
		t.Fatalf("antipodal distance: got %v, want about %v", d, half)
	}
}

func TestFormatDistance(t *testing.T) {
	cases := []struct {
		meters float64
		want   string
	}{
		{0, "0m"},
		{500, "500m"},
		{999.4, "999m"},
		{1000, "1.0km"},
		{1500, "1.5km"},
		{12345, "12.3km"},
	}
	for _, c := range cases {
		if got := FormatDistance(c.meters); got != c.want {
			t.Fatalf("FormatDistance(%v): got %q, want %q", c.meters, got, c.want)
		}
	}
}
