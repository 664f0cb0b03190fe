package services

import (
	"context"
	"testing"

	"busline/internal/domain"
	"busline/internal/domain/models"
)

func TestAssignRecordsInitialChange(t *testing.T) {
	f := newFixture(t)
	ctx := domain.WithRequestContext(context.Background(), domain.RequestContext{ActorID: "op-7"})

	a, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: f.sched.ID, BusID: f.b1.ID, Date: f.date})
	if err != nil {
		t.Fatalf("Assign returned error: %v", err)
	}
	if a.Status != models.AssignmentAssigned || a.BusID != f.b1.ID {
		t.Fatalf("unexpected assignment %+v", a)
	}

	hist, err := f.assignments.History(ctx, a.ID)
	if err != nil {
		t.Fatalf("History returned error: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(hist))
	}
	if hist[0].OldBusID != nil || hist[0].NewBusID != f.b1.ID || hist[0].ChangedBy != "op-7" {
		t.Fatalf("unexpected initial change %+v", hist[0])
	}
}

func TestAssignDuplicateTriple(t *testing.T) {
	f := newFixture(t)
	f.assign(t, f.b1.ID)

	_, err := f.assignments.Assign(context.Background(), AssignInput{ScheduleID: f.sched.ID, BusID: f.b1.ID, Date: f.date})
	if !domain.IsDuplicateAssignment(err) {
		t.Fatalf("expected DuplicateAssignment, got %v", err)
	}

	// a second bus on the same slot scales capacity
	f.assign(t, f.b2.ID)
	list, err := f.assignments.ListForDate(context.Background(), f.date, f.route.ID)
	if err != nil {
		t.Fatalf("ListForDate returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(list))
	}
}

func TestAssignValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.SetBusActive(f.b2.ID, false)
	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: f.sched.ID, BusID: f.b2.ID, Date: f.date}); !domain.IsValidation(err) {
		t.Fatalf("inactive bus: expected ValidationError, got %v", err)
	}

	past := f.now.AddDate(0, 0, -3)
	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: f.sched.ID, BusID: f.b1.ID, Date: past}); !domain.IsValidation(err) {
		t.Fatalf("past date: expected ValidationError, got %v", err)
	}

	// inside the grace window
	yesterday := f.now.AddDate(0, 0, -1)
	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: f.sched.ID, BusID: f.b1.ID, Date: yesterday}); err != nil {
		t.Fatalf("grace window: unexpected error %v", err)
	}

	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: 999, BusID: f.b1.ID, Date: f.date}); !domain.IsNotFound(err) {
		t.Fatalf("unknown schedule: expected NotFound, got %v", err)
	}
}

func TestReassignRequiresReason(t *testing.T) {
	f := newFixture(t)
	a := f.assign(t, f.b1.ID)

	for _, reason := range []string{"", "   "} {
		_, err := f.assignments.Reassign(context.Background(), a.ID, f.b2.ID, reason, "op")
		if !domain.IsValidation(err) {
			t.Fatalf("reason %q: expected ValidationError, got %v", reason, err)
		}
	}

	got, _ := f.assignments.Get(context.Background(), a.ID)
	if got.BusID != f.b1.ID {
		t.Fatalf("assignment changed without reason: bus=%d", got.BusID)
	}
	hist, _ := f.assignments.History(context.Background(), a.ID)
	if len(hist) != 1 {
		t.Fatalf("expected only the initial audit row, got %d", len(hist))
	}
}

func TestReassignMovesTripBus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")

	a, err := f.assignments.Reassign(ctx, *trip.AssignmentID, f.b2.ID, "breakdown", "op-1")
	if err != nil {
		t.Fatalf("Reassign returned error: %v", err)
	}
	if a.BusID != f.b2.ID {
		t.Fatalf("assignment bus = %d, want %d", a.BusID, f.b2.ID)
	}

	after := f.assertInventory(t, trip.ID)
	if after.BusID != f.b2.ID {
		t.Fatalf("trip bus = %d, want %d", after.BusID, f.b2.ID)
	}
	if after.AvailableSeats != 39 || after.Status != models.TripScheduled || after.Price != trip.Price {
		t.Fatalf("trip state changed: %+v", after)
	}
	same, _ := f.tickets.GetTicket(ctx, tk.ID)
	if same.Status != models.TicketPending || same.SeatID != "A1" {
		t.Fatalf("ticket changed: %+v", same)
	}

	hist, _ := f.assignments.History(ctx, a.ID)
	if len(hist) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(hist))
	}
	last := hist[len(hist)-1]
	if last.OldBusID == nil || *last.OldBusID != f.b1.ID || last.NewBusID != f.b2.ID || last.Reason != "breakdown" || last.ChangedBy != "op-1" {
		t.Fatalf("unexpected change row %+v", last)
	}
	if last.NewBusID != a.BusID {
		t.Fatalf("latest audit row does not match assignment bus")
	}
}

func TestReassignConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.assign(t, f.b1.ID)
	f.assign(t, f.b2.ID)

	if _, err := f.assignments.Reassign(ctx, a.ID, f.b2.ID, "swap", "op"); !domain.IsDuplicateAssignment(err) {
		t.Fatalf("taken slot: expected DuplicateAssignment, got %v", err)
	}
	if _, err := f.assignments.Reassign(ctx, a.ID, f.b1.ID, "same", "op"); !domain.IsValidation(err) {
		t.Fatalf("same bus: expected ValidationError, got %v", err)
	}
	if _, err := f.assignments.Reassign(ctx, 999, f.b1.ID, "x", "op"); !domain.IsNotFound(err) {
		t.Fatalf("unknown assignment: expected NotFound, got %v", err)
	}
}

func TestRemoveBlockedBySoldTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	f.ticket(t, trip.ID, "B2")

	if err := f.assignments.Remove(ctx, *trip.AssignmentID); !domain.IsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if _, err := f.assignments.Get(ctx, *trip.AssignmentID); err != nil {
		t.Fatalf("assignment should survive: %v", err)
	}
}

func TestRemoveCancelsUnsoldTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")
	if _, err := f.tickets.Cancel(ctx, tk.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	assignmentID := *trip.AssignmentID
	if err := f.assignments.Remove(ctx, assignmentID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if _, err := f.assignments.Get(ctx, assignmentID); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFound after remove, got %v", err)
	}
	got, _ := f.store.GetTrip(ctx, trip.ID)
	if got.Status != models.TripCancelled || got.AssignmentID != nil {
		t.Fatalf("trip not detached: %+v", got)
	}
	changes, _ := f.store.ListChanges(ctx, assignmentID)
	if len(changes) != 1 {
		t.Fatalf("audit rows must be kept, got %d", len(changes))
	}
}

func TestSetStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.assign(t, f.b1.ID)

	got, err := f.assignments.SetStatus(ctx, a.ID, models.AssignmentInProgress)
	if err != nil || got.Status != models.AssignmentInProgress {
		t.Fatalf("SetStatus in_progress: %+v %v", got, err)
	}
	if _, err := f.assignments.SetStatus(ctx, a.ID, models.AssignmentAssigned); !domain.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransition, got %v", err)
	}
	if _, err := f.assignments.SetStatus(ctx, a.ID, "parked"); !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestReassignChecksHeldSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")
	numbered := f.store.AddBus(models.Bus{Plate: "B3", Capacity: 40, IsActive: true})
	small := f.store.AddBus(models.Bus{Plate: "B4", Capacity: 20, IsActive: true, SeatMap: seatLabels(20)})

	if _, err := f.assignments.Reassign(ctx, *trip.AssignmentID, numbered.ID, "breakdown", "op"); !domain.IsConflict(err) {
		t.Fatalf("held seat missing on new bus: expected Conflict, got %v", err)
	}
	if _, err := f.assignments.Reassign(ctx, *trip.AssignmentID, small.ID, "breakdown", "op"); !domain.IsConflict(err) {
		t.Fatalf("smaller bus: expected Conflict, got %v", err)
	}
	hist, _ := f.assignments.History(ctx, *trip.AssignmentID)
	if len(hist) != 1 {
		t.Fatalf("rejected swaps must not be audited, got %d rows", len(hist))
	}

	if _, err := f.tickets.Cancel(ctx, tk.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if _, err := f.assignments.Reassign(ctx, *trip.AssignmentID, numbered.ID, "breakdown", "op"); err != nil {
		t.Fatalf("Reassign after cancel returned error: %v", err)
	}
	f.assertInventory(t, trip.ID)
}

func TestRemoveThenAssignReopensTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	if err := f.assignments.Remove(ctx, *trip.AssignmentID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	a := f.assign(t, f.b1.ID)
	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("GenerateForDate returned error: %v", err)
	}
	if len(sum.Created) != 1 || len(sum.Skipped) != 0 {
		t.Fatalf("expected the trip back, got created=%d skipped=%+v", len(sum.Created), sum.Skipped)
	}
	reopened := sum.Created[0]
	if reopened.ID != trip.ID || reopened.AssignmentID == nil || *reopened.AssignmentID != a.ID {
		t.Fatalf("trip not relinked: %+v", reopened)
	}
	if reopened.Status != models.TripScheduled || reopened.AvailableSeats != reopened.TotalSeats {
		t.Fatalf("trip not reopened: %+v", reopened)
	}

	entries, err := f.board.Board(ctx, f.date, f.route.ID)
	if err != nil {
		t.Fatalf("Board returned error: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Assignments) != 1 {
		t.Fatalf("unexpected board %+v", entries)
	}
	if view := entries[0].Assignments[0].Trip; view == nil || !view.Sellable {
		t.Fatalf("reopened trip not sellable on the board: %+v", view)
	}
	f.ticket(t, trip.ID, "A1")
	f.assertInventory(t, trip.ID)

	sum, err = f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("second GenerateForDate returned error: %v", err)
	}
	if len(sum.Created) != 0 || len(sum.Skipped) != 1 || sum.Skipped[0].Reason != models.SkipAlreadyExists {
		t.Fatalf("second run: created=%d skipped=%+v", len(sum.Created), sum.Skipped)
	}
}
