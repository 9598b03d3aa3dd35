package clock

import (
	"strings"
	"sync"
	"testing"

	"shifttrack/internal/history"
	"shifttrack/internal/model"
	"shifttrack/internal/perimeter"
)

func testLedger(t *testing.T) (*Ledger, *history.Store) {
	t.Helper()
	gate := NewGate(testRegistry(), perimeter.DefaultCheckOptions())
	hist := history.NewStore(0)
	return NewLedger(gate, nil, hist, nil), hist
}

func TestLedgerClockInAndOut(t *testing.T) {
	ledger, hist := testLedger(t)

	in := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), "starting rounds")
	if !in.OK {
		t.Fatalf("clock in failed: %s", in.Message)
	}
	if in.Shift == nil || in.Shift.Status != model.ShiftActive {
		t.Fatalf("expected an active shift, got %+v", in.Shift)
	}
	if in.Shift.ClockIn.Note != "starting rounds" {
		t.Errorf("note not carried onto event: %q", in.Shift.ClockIn.Note)
	}
	if !ledger.IsClockedIn("nurse-1") {
		t.Fatal("expected nurse-1 to be clocked in")
	}

	out := ledger.ClockOut("nurse-1", point(40.7831, -73.9712, 10), "")
	if !out.OK {
		t.Fatalf("clock out failed: %s", out.Message)
	}
	if out.Shift.Status != model.ShiftCompleted {
		t.Errorf("expected completed status, got %q", out.Shift.Status)
	}
	if out.Shift.TotalHours == nil {
		t.Fatal("expected total hours on completed shift")
	}
	want := out.Shift.ClockOut.Timestamp.Sub(out.Shift.ClockIn.Timestamp).Hours()
	if *out.Shift.TotalHours != want {
		t.Errorf("total hours %v does not match event timestamps (%v)", *out.Shift.TotalHours, want)
	}
	if ledger.IsClockedIn("nurse-1") {
		t.Error("expected nurse-1 to be clocked out")
	}

	if got := len(hist.Events(0)); got != 2 {
		t.Errorf("expected 2 recorded events, got %d", got)
	}
	if got := len(hist.UserShifts("nurse-1", 0)); got != 1 {
		t.Errorf("expected 1 completed shift in history, got %d", got)
	}
}

func TestLedgerDoubleClockIn(t *testing.T) {
	ledger, _ := testLedger(t)

	if res := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), ""); !res.OK {
		t.Fatalf("first clock in failed: %s", res.Message)
	}
	res := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), "")
	if res.OK {
		t.Fatal("second clock in should fail")
	}
	if res.Kind != ErrAlreadyClockedIn {
		t.Errorf("expected %s, got %s", ErrAlreadyClockedIn, res.Kind)
	}
}

func TestLedgerClockInOutsidePerimeter(t *testing.T) {
	ledger, _ := testLedger(t)

	res := ledger.ClockIn("nurse-1", point(40.8000, -73.9500, 10), "")
	if res.OK {
		t.Fatal("clock in outside the perimeter should fail")
	}
	if res.Kind != ErrLocationInvalid {
		t.Errorf("expected %s, got %s", ErrLocationInvalid, res.Kind)
	}
	if ledger.IsClockedIn("nurse-1") {
		t.Error("failed clock in must not open a shift")
	}
}

func TestLedgerClockOutWithoutShift(t *testing.T) {
	ledger, _ := testLedger(t)

	res := ledger.ClockOut("nurse-1", point(40.7831, -73.9712, 10), "")
	if res.OK {
		t.Fatal("clock out with no active shift should fail")
	}
	if res.Kind != ErrNotClockedIn {
		t.Errorf("expected %s, got %s", ErrNotClockedIn, res.Kind)
	}
}

func TestLedgerClockOutOutsidePerimeter(t *testing.T) {
	ledger, _ := testLedger(t)

	if res := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), ""); !res.OK {
		t.Fatalf("clock in failed: %s", res.Message)
	}
	res := ledger.ClockOut("nurse-1", point(40.8000, -73.9500, 10), "left site")
	if !res.OK {
		t.Fatalf("clock out outside the perimeter must still succeed: %s", res.Message)
	}
	if res.Shift.ClockOut.Validation.LocationValid {
		t.Error("audit record should show the clock-out location as outside")
	}
}

func TestLedgerForceClockOut(t *testing.T) {
	ledger, _ := testLedger(t)

	if res := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), ""); !res.OK {
		t.Fatalf("clock in failed: %s", res.Message)
	}
	res := ledger.ForceClockOut("nurse-1", "mgr-9", "shift handover missed", nil)
	if !res.OK {
		t.Fatalf("force clock out failed: %s", res.Message)
	}
	note := res.Shift.ClockOut.Note
	if !strings.Contains(note, "mgr-9") || !strings.Contains(note, "shift handover missed") {
		t.Errorf("note should record manager and reason, got %q", note)
	}
	if res.Shift.ClockOut.Location != nil {
		t.Error("no last-known reading was supplied, event should carry no location")
	}
	if res.Shift.ClockOut.Validation.DistanceMeters != -1 {
		t.Errorf("expected sentinel distance -1, got %v", res.Shift.ClockOut.Validation.DistanceMeters)
	}

	again := ledger.ForceClockOut("nurse-1", "mgr-9", "", nil)
	if again.OK || again.Kind != ErrNotClockedIn {
		t.Errorf("second force close should report %s, got %+v", ErrNotClockedIn, again)
	}
}

func TestLedgerConcurrentClockIn(t *testing.T) {
	ledger, _ := testLedger(t)

	const attempts = 16
	results := make([]Result, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, res := range results {
		if res.OK {
			succeeded++
		} else if res.Kind != ErrAlreadyClockedIn {
			t.Errorf("losing attempt reported %s, want %s", res.Kind, ErrAlreadyClockedIn)
		}
	}
	if succeeded != 1 {
		t.Fatalf("exactly one concurrent clock in should succeed, got %d", succeeded)
	}
	if got := len(ledger.AllActiveShifts()); got != 1 {
		t.Fatalf("expected exactly one active shift, got %d", got)
	}
}

func TestLedgerAllActiveShiftsOrdered(t *testing.T) {
	ledger, _ := testLedger(t)

	for _, user := range []string{"nurse-1", "nurse-2", "nurse-3"} {
		if res := ledger.ClockIn(user, point(40.7831, -73.9712, 10), ""); !res.OK {
			t.Fatalf("clock in %s failed: %s", user, res.Message)
		}
	}
	shifts := ledger.AllActiveShifts()
	if len(shifts) != 3 {
		t.Fatalf("expected 3 active shifts, got %d", len(shifts))
	}
	for i := 1; i < len(shifts); i++ {
		if shifts[i].ClockIn.Timestamp.Before(shifts[i-1].ClockIn.Timestamp) {
			t.Errorf("shifts not ordered by clock-in time at index %d", i)
		}
	}
}

func TestLedgerCurrentDuration(t *testing.T) {
	ledger, _ := testLedger(t)

	if _, ok := ledger.CurrentDuration("nurse-1"); ok {
		t.Fatal("expected no duration without an active shift")
	}
	if res := ledger.ClockIn("nurse-1", point(40.7831, -73.9712, 10), ""); !res.OK {
		t.Fatalf("clock in failed: %s", res.Message)
	}
	d, ok := ledger.CurrentDuration("nurse-1")
	if !ok {
		t.Fatal("expected a duration for the active shift")
	}
	if d.Hours != 0 || d.Minutes != 0 {
		t.Errorf("fresh shift should report 0h0m, got %dh%dm", d.Hours, d.Minutes)
	}
}

func TestLedgerEmptyUserID(t *testing.T) {
	ledger, _ := testLedger(t)

	if res := ledger.ClockIn("", point(40.7831, -73.9712, 10), ""); res.OK || res.Kind != ErrSystem {
		t.Errorf("expected %s for empty user id, got %+v", ErrSystem, res)
	}
	if res := ledger.ClockOut("", point(40.7831, -73.9712, 10), ""); res.OK || res.Kind != ErrSystem {
		t.Errorf("expected %s for empty user id, got %+v", ErrSystem, res)
	}
}
