package crossing

import (
	"testing"
	"time"

	"shifttrack/internal/model"
	"shifttrack/internal/notify"
	"shifttrack/internal/perimeter"
)

func testRegistry() *perimeter.Registry {
	return perimeter.NewRegistry([]model.Perimeter{
		{ID: "ward-3", Name: "Ward 3", CenterLatitude: 40.7831, CenterLongitude: -73.9712, RadiusMeters: 200},
	})
}

func reading(lat, lng float64) model.GeoPoint {
	return model.GeoPoint{Latitude: lat, Longitude: lng, ObservedAt: time.Now().UTC()}
}

const (
	insideLat  = 40.7831
	insideLng  = -73.9712
	outsideLat = 40.8000
	outsideLng = -73.9500
)

func TestDetectorEnterAndExit(t *testing.T) {
	sink := notify.NewStore(0)
	d := NewDetector(testRegistry(), sink, nil, nil, DefaultOptions())

	// first observation only seeds state
	if _, emitted := d.Observe("nurse-1", reading(outsideLat, outsideLng)); emitted {
		t.Fatal("first observation must not emit")
	}

	ev, emitted := d.Observe("nurse-1", reading(insideLat, insideLng))
	if !emitted {
		t.Fatal("expected an enter event")
	}
	if ev.Kind != model.CrossingEnter {
		t.Errorf("expected enter, got %q", ev.Kind)
	}
	if ev.Perimeter == nil || ev.Perimeter.ID != "ward-3" {
		t.Errorf("expected perimeter ward-3 on the event, got %+v", ev.Perimeter)
	}

	ev, emitted = d.Observe("nurse-1", reading(outsideLat, outsideLng))
	if !emitted || ev.Kind != model.CrossingExit {
		t.Fatalf("expected an exit event, got emitted=%v kind=%q", emitted, ev.Kind)
	}

	if got := len(sink.List(0)); got != 2 {
		t.Errorf("expected 2 events published to the sink, got %d", got)
	}
}

func TestDetectorSteadyStateDoesNotRefire(t *testing.T) {
	d := NewDetector(testRegistry(), nil, nil, nil, DefaultOptions())

	d.Observe("nurse-1", reading(outsideLat, outsideLng))
	if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); !emitted {
		t.Fatal("expected an enter event")
	}
	for i := 0; i < 3; i++ {
		if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); emitted {
			t.Fatal("steady presence inside must not re-fire")
		}
	}
}

func TestDetectorSubjectsIndependent(t *testing.T) {
	d := NewDetector(testRegistry(), nil, nil, nil, DefaultOptions())

	d.Observe("nurse-1", reading(outsideLat, outsideLng))
	d.Observe("nurse-2", reading(insideLat, insideLng))

	if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); !emitted {
		t.Error("nurse-1 crossing should emit")
	}
	if _, emitted := d.Observe("nurse-2", reading(insideLat, insideLng)); emitted {
		t.Error("nurse-2 never crossed, nothing should emit")
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewDetector(testRegistry(), nil, nil, nil, DefaultOptions())

	d.Observe("nurse-1", reading(outsideLat, outsideLng))
	d.Reset()
	if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); emitted {
		t.Fatal("after reset the next observation only seeds state")
	}
	if _, emitted := d.Observe("nurse-1", reading(outsideLat, outsideLng)); !emitted {
		t.Fatal("crossing after reseed should emit")
	}
}

func TestDetectorEmptySubjectID(t *testing.T) {
	d := NewDetector(testRegistry(), nil, nil, nil, DefaultOptions())

	d.Observe("", reading(outsideLat, outsideLng))
	ev, emitted := d.Observe("", reading(insideLat, insideLng))
	if !emitted {
		t.Fatal("expected an enter event for the fallback subject")
	}
	if ev.SubjectID != "unknown" {
		t.Errorf("expected subject id %q, got %q", "unknown", ev.SubjectID)
	}
}

func TestDetectorDedupeWindow(t *testing.T) {
	opts := DefaultOptions()
	opts.DedupeWindow = time.Minute
	d := NewDetector(testRegistry(), nil, nil, nil, opts)

	p := reading(outsideLat, outsideLng)
	d.Observe("nurse-1", p)

	inside := reading(insideLat, insideLng)
	if _, emitted := d.Observe("nurse-1", inside); !emitted {
		t.Fatal("expected an enter event")
	}
	// same reading re-delivered: dropped before any state change
	if _, emitted := d.Observe("nurse-1", inside); emitted {
		t.Fatal("re-delivered observation must be dropped")
	}
}

func TestDetectorNotifyCooldown(t *testing.T) {
	opts := DefaultOptions()
	opts.NotifyCooldown = time.Hour
	d := NewDetector(testRegistry(), nil, nil, nil, opts)

	d.Observe("nurse-1", reading(outsideLat, outsideLng))
	if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); !emitted {
		t.Fatal("first crossing should emit")
	}
	// exit within the cooldown is damped
	if _, emitted := d.Observe("nurse-1", reading(outsideLat, outsideLng)); emitted {
		t.Fatal("crossing inside the cooldown window must be damped")
	}
}

func TestDetectorAccuracyGateSkipsReading(t *testing.T) {
	opts := DefaultOptions()
	opts.Check.RequireHighAccuracy = true
	opts.Check.AccuracyThresholdMeters = 50
	d := NewDetector(testRegistry(), nil, nil, nil, opts)

	d.Observe("nurse-1", reading(outsideLat, outsideLng))

	bad := reading(insideLat, insideLng)
	acc := 500.0
	bad.AccuracyMeters = &acc
	if _, emitted := d.Observe("nurse-1", bad); emitted {
		t.Fatal("gated reading must not emit")
	}
	// state was not updated either, so a good inside reading still crosses
	if _, emitted := d.Observe("nurse-1", reading(insideLat, insideLng)); !emitted {
		t.Fatal("good reading after a gated one should still detect the crossing")
	}
}
