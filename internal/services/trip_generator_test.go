package services

import (
	"context"
	"testing"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
)

func TestGenerateForDateCreatesTrip(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t)

	if trip.TotalSeats != 40 || trip.AvailableSeats != 40 {
		t.Fatalf("seats = %d/%d, want 40/40", trip.AvailableSeats, trip.TotalSeats)
	}
	if trip.Price != 1000 {
		t.Fatalf("price = %d, want 1000", trip.Price)
	}
	if trip.Status != models.TripScheduled {
		t.Fatalf("status = %s", trip.Status)
	}
	want := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	if !trip.DepartureTime.Equal(want) {
		t.Fatalf("departure = %s, want %s", trip.DepartureTime, want)
	}
	if trip.BusID != f.b1.ID || trip.RouteID != f.route.ID || trip.ScheduleID != f.sched.ID {
		t.Fatalf("unexpected trip refs %+v", trip)
	}
}

func TestGenerateForDateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.trip(t)

	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("second run error: %v", err)
	}
	if len(sum.Created) != 0 {
		t.Fatalf("second run created %d trips", len(sum.Created))
	}
	if len(sum.Skipped) != 1 || sum.Skipped[0].Reason != models.SkipAlreadyExists || sum.Skipped[0].TripID != first.ID {
		t.Fatalf("unexpected skips %+v", sum.Skipped)
	}
	trips, _ := f.store.ListTripsByDate(ctx, f.date)
	if len(trips) != 1 {
		t.Fatalf("expected 1 trip for date, got %d", len(trips))
	}
}

func TestGenerateForDateSkipReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	idle := models.Schedule{RouteID: f.route.ID, Hour: 14, ExpressPriceMultiplier: 1, IsActive: true}
	if err := f.store.CreateSchedule(ctx, &idle); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	f.assign(t, f.b1.ID)
	f.assign(t, f.b2.ID)
	f.store.SetBusActive(f.b2.ID, false)

	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("GenerateForDate returned error: %v", err)
	}
	if len(sum.Created) != 1 || sum.Created[0].BusID != f.b1.ID {
		t.Fatalf("unexpected created %+v", sum.Created)
	}
	counts := sum.Counts()
	if counts[models.SkipBusInactive] != 1 || counts[models.SkipNoBusAssigned] != 1 {
		t.Fatalf("unexpected skip counts %v", counts)
	}
	for _, s := range sum.Skipped {
		if s.Reason == models.SkipNoBusAssigned && s.ScheduleID != idle.ID {
			t.Fatalf("NoBusAssigned reported for schedule %d", s.ScheduleID)
		}
	}

	// once the bus is back, a rerun picks up only the missing trip
	f.store.SetBusActive(f.b2.ID, true)
	sum, err = f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("rerun error: %v", err)
	}
	if len(sum.Created) != 1 || sum.Created[0].BusID != f.b2.ID {
		t.Fatalf("rerun created %+v", sum.Created)
	}
}

func TestGenerateExpressPriceAndArrival(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	route := f.store.AddRoute(models.Route{Name: "R2", BasePrice: 1099, DurationMinutes: 390, IsActive: true})
	express := models.Schedule{RouteID: route.ID, Hour: 22, IsExpress: true, ExpressPriceMultiplier: 1.5, IsActive: true}
	if err := f.store.CreateSchedule(ctx, &express); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: express.ID, BusID: f.b1.ID, Date: f.date}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("GenerateForDate returned error: %v", err)
	}
	if len(sum.Created) != 1 {
		t.Fatalf("expected 1 trip, got %d", len(sum.Created))
	}
	trip := sum.Created[0]
	// 1099 * 1.5 = 1648.5 rounds half-up
	if trip.Price != 1649 {
		t.Fatalf("price = %d, want 1649", trip.Price)
	}
	if trip.ArrivalEstimate == nil {
		t.Fatalf("missing arrival estimate")
	}
	want := time.Date(2024, 6, 2, 4, 30, 0, 0, time.UTC)
	if !trip.ArrivalEstimate.Equal(want) {
		t.Fatalf("arrival = %s, want %s", trip.ArrivalEstimate, want)
	}

	// a later base price change does not touch the generated trip
	price, _ := f.catalog.PriceFor(ctx, express.ID)
	if price != trip.Price {
		t.Fatalf("PriceFor = %d, trip price = %d", price, trip.Price)
	}
}

func TestGenerateSkipsCancelledAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.assign(t, f.b1.ID)
	if _, err := f.assignments.SetStatus(ctx, a.ID, models.AssignmentCancelled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("GenerateForDate: %v", err)
	}
	if len(sum.Created) != 0 || sum.Counts()[models.SkipCancelled] != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestGenerateRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, f.b1.ID)
	next := f.date.AddDate(0, 0, 1)
	if _, err := f.assignments.Assign(ctx, AssignInput{ScheduleID: f.sched.ID, BusID: f.b1.ID, Date: next}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	sums, err := f.generator.GenerateRange(ctx, f.date, next)
	if err != nil {
		t.Fatalf("GenerateRange: %v", err)
	}
	if len(sums) != 2 || len(sums[0].Created) != 1 || len(sums[1].Created) != 1 {
		t.Fatalf("unexpected summaries %+v", sums)
	}
	if _, err := f.generator.GenerateRange(ctx, next, f.date); !domain.IsValidation(err) {
		t.Fatalf("reversed range: expected ValidationError, got %v", err)
	}
}

func TestTransitionTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")
	if _, err := f.tickets.ConfirmPayment(ctx, tk.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if _, err := f.tickets.Board(ctx, tk.ID); err != nil {
		t.Fatalf("board: %v", err)
	}

	for _, to := range []models.TripStatus{models.TripBoarding, models.TripInTransit, models.TripCompleted} {
		if _, err := f.generator.TransitionTrip(ctx, trip.ID, to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	got, _ := f.tickets.GetTicket(ctx, tk.ID)
	if got.Status != models.TicketCompleted {
		t.Fatalf("boarded ticket not completed: %s", got.Status)
	}
	f.assertInventory(t, trip.ID)

	if _, err := f.generator.TransitionTrip(ctx, trip.ID, models.TripDelayed); !domain.IsInvalidTransition(err) {
		t.Fatalf("terminal trip: expected InvalidTransition, got %v", err)
	}
	if _, err := f.tickets.CreateTicket(ctx, CreateTicketInput{TripID: trip.ID, SeatID: "A2", Passenger: models.PassengerInfo{Name: "Late"}}); !domain.IsTripNotBookable(err) {
		t.Fatalf("completed trip: expected TripNotBookable, got %v", err)
	}
}

func TestCompletingTripSettlesTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	unpaid := f.ticket(t, trip.ID, "A1")
	noShow := f.ticket(t, trip.ID, "A2")
	rider := f.ticket(t, trip.ID, "A3")
	for _, id := range []int64{noShow.ID, rider.ID} {
		if _, err := f.tickets.ConfirmPayment(ctx, id); err != nil {
			t.Fatalf("pay %d: %v", id, err)
		}
	}
	if _, err := f.tickets.Board(ctx, rider.ID); err != nil {
		t.Fatalf("board: %v", err)
	}

	for _, to := range []models.TripStatus{models.TripBoarding, models.TripInTransit, models.TripCompleted} {
		if _, err := f.generator.TransitionTrip(ctx, trip.ID, to); err != nil {
			t.Fatalf("transition to %s: %v", to, err)
		}
	}
	want := map[int64]models.TicketStatus{
		unpaid.ID: models.TicketCancelled,
		noShow.ID: models.TicketPaid,
		rider.ID:  models.TicketCompleted,
	}
	for id, status := range want {
		got, _ := f.tickets.GetTicket(ctx, id)
		if got.Status != status {
			t.Fatalf("ticket %d status = %s, want %s", id, got.Status, status)
		}
	}
	f.assertInventory(t, trip.ID)
}

func TestCancellingTripRefundsTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	unpaid := f.ticket(t, trip.ID, "A1")
	paid := f.ticket(t, trip.ID, "A2")
	if _, err := f.tickets.ConfirmPayment(ctx, paid.ID); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := f.generator.TransitionTrip(ctx, trip.ID, models.TripCancelled); err != nil {
		t.Fatalf("cancel trip: %v", err)
	}
	if got, _ := f.tickets.GetTicket(ctx, unpaid.ID); got.Status != models.TicketCancelled {
		t.Fatalf("unpaid ticket status = %s", got.Status)
	}
	if got, _ := f.tickets.GetTicket(ctx, paid.ID); got.Status != models.TicketRefunded {
		t.Fatalf("paid ticket status = %s", got.Status)
	}
	after := f.assertInventory(t, trip.ID)
	if after.AvailableSeats != after.TotalSeats {
		t.Fatalf("seats not released: %+v", after)
	}

	// the trip still owns its slot while the assignment exists
	sum, err := f.generator.GenerateForDate(ctx, f.date)
	if err != nil {
		t.Fatalf("GenerateForDate returned error: %v", err)
	}
	if len(sum.Created) != 0 || len(sum.Skipped) != 1 || sum.Skipped[0].Reason != models.SkipAlreadyExists {
		t.Fatalf("created=%d skipped=%+v", len(sum.Created), sum.Skipped)
	}
}
