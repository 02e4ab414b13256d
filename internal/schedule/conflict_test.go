package schedule

import (
	"testing"

	"github.com/example/scrap-tracking/internal/models"
)

func activeOn(date, slot string) models.Assignment {
	return models.Assignment{
		Status:     models.StatusAccepted,
		PickupSlot: &models.PickupSlot{Date: date, Slot: slot},
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in         string
		start, end int
		ok         bool
	}{
		{"9:00 AM - 12:00 PM", 540, 720, true},
		{"12:00 PM - 2:00 PM", 720, 840, true},
		{"12:15 AM - 1:05 AM", 15, 65, true},
		{"11:00 am - 1:00 pm", 660, 780, true},
		{"Morning", 0, 0, false},
		{"9:00 AM", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		w, ok := ParseWindow(c.in)
		if ok != c.ok {
			t.Fatalf("%q: ok=%v want %v", c.in, ok, c.ok)
		}
		if ok && (w.Start != c.start || w.End != c.end) {
			t.Fatalf("%q: got [%d,%d) want [%d,%d)", c.in, w.Start, w.End, c.start, c.end)
		}
	}
}

func TestUnscheduledCandidateNeverConflicts(t *testing.T) {
	existing := []models.Assignment{activeOn("2024-06-10", "9:00 AM - 12:00 PM")}
	if Conflicts(nil, "", existing) {
		t.Fatal("candidate without slot or preferred time must not conflict")
	}
}

func TestOverlapDetection(t *testing.T) {
	existing := []models.Assignment{activeOn("2024-06-10", "9:00 AM - 12:00 PM")}

	overlap := &models.PickupSlot{Date: "2024-06-10", Slot: "11:00 AM - 1:00 PM"}
	if !Conflicts(overlap, "", existing) {
		t.Fatal("11:00-13:00 overlaps 9:00-12:00")
	}

	// half-open boundary: starting exactly when the other ends is fine
	adjacent := &models.PickupSlot{Date: "2024-06-10", Slot: "12:00 PM - 2:00 PM"}
	if Conflicts(adjacent, "", existing) {
		t.Fatal("back-to-back slots must not conflict")
	}

	otherDay := &models.PickupSlot{Date: "2024-06-11", Slot: "11:00 AM - 1:00 PM"}
	if Conflicts(otherDay, "", existing) {
		t.Fatal("same window on another date must not conflict")
	}
}

func TestCompletedAssignmentsAreIgnored(t *testing.T) {
	done := activeOn("2024-06-10", "9:00 AM - 12:00 PM")
	done.Status = models.StatusCompleted
	cand := &models.PickupSlot{Date: "2024-06-10", Slot: "10:00 AM - 11:00 AM"}
	if Conflicts(cand, "", []models.Assignment{done}) {
		t.Fatal("completed assignments never block")
	}
}

func TestUnparseableSlotFailsOpen(t *testing.T) {
	existing := []models.Assignment{activeOn("2024-06-10", "9:00 AM - 12:00 PM")}
	cand := &models.PickupSlot{Date: "2024-06-10", Slot: "Morning"}
	if Conflicts(cand, "", existing) {
		t.Fatal("unparseable candidate window must fail open")
	}

	weird := []models.Assignment{activeOn("2024-06-10", "whenever works")}
	cand = &models.PickupSlot{Date: "2024-06-10", Slot: "9:00 AM - 12:00 PM"}
	if Conflicts(cand, "", weird) {
		t.Fatal("unparseable existing window must fail open")
	}
}

func TestPreferredTimeUsedWhenSlotWindowMissing(t *testing.T) {
	existing := []models.Assignment{activeOn("2024-06-10", "9:00 AM - 12:00 PM")}
	cand := &models.PickupSlot{Date: "2024-06-10"}
	if !Conflicts(cand, "10:00 AM - 11:00 AM", existing) {
		t.Fatal("preferred time window should be checked when slot has none")
	}
}
