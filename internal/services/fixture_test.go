package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"busline/internal/domain/models"
	"busline/internal/repositories/memory"
	"busline/internal/utils"
)

type recordingEvents struct {
	mu     sync.Mutex
	events []models.SeatEvent
}

func (r *recordingEvents) SeatChanged(_ context.Context, ev models.SeatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) all() []models.SeatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SeatEvent(nil), r.events...)
}

type fixture struct {
	store  *memory.Store
	route  models.Route
	sched  models.Schedule
	b1     models.Bus
	b2     models.Bus
	date   time.Time
	now    time.Time
	events *recordingEvents

	catalog     CatalogService
	assignments AssignmentService
	generator   TripGenerator
	inventory   SeatInventory
	tickets     TicketService
	board       BoardService
}

func seatLabels(n int) []string {
	out := make([]string, 0, n)
	rows := "ABCDEFGHIJ"
	for i := 0; i < n; i++ {
		out = append(out, string(rows[i/4])+string(rune('1'+i%4)))
	}
	return out
}

// newFixture seeds route R1 ($10.00), a non-express 08:00 schedule and two
// 40-seat buses, with the clock two days before 2024-06-01.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	f := &fixture{store: st, events: &recordingEvents{}}
	f.date, _ = utils.ParseDate("2024-06-01")
	f.now = time.Date(2024, 5, 30, 10, 0, 0, 0, time.UTC)
	now := func() time.Time { return f.now }

	f.route = st.AddRoute(models.Route{Name: "R1", Origin: "Panama", Destination: "David", BasePrice: 1000, IsActive: true})
	f.sched = models.Schedule{RouteID: f.route.ID, Hour: 8, ExpressPriceMultiplier: 1, IsActive: true}
	if err := st.CreateSchedule(ctx, &f.sched); err != nil {
		t.Fatalf("seed schedule: %v", err)
	}
	f.b1 = st.AddBus(models.Bus{Plate: "B1", Capacity: 40, IsActive: true, SeatMap: seatLabels(40)})
	f.b2 = st.AddBus(models.Bus{Plate: "B2", Capacity: 40, IsActive: true, SeatMap: seatLabels(40)})

	f.catalog = CatalogService{Routes: st, Schedules: st}
	f.assignments = AssignmentService{Schedules: st, Buses: st, Assignments: st, Trips: st, Tickets: st, GraceDays: 1, Now: now}
	f.generator = TripGenerator{Schedules: st, Routes: st, Buses: st, Assignments: st, Trips: st, Tickets: st, Now: now}
	f.inventory = SeatInventory{Trips: st, Buses: st, Seats: st, Events: f.events, Now: now}
	f.tickets = TicketService{
		Trips: st, Tickets: st, Seats: st, Inventory: f.inventory,
		Signer: utils.QRSigner{Key: []byte("test-secret")}, TaxRate: 0.07,
		HoldTimeout: 15 * time.Minute, Now: now,
	}
	f.board = BoardService{Routes: st, Schedules: st, Assignments: st, Trips: st}
	return f
}

func (f *fixture) assign(t *testing.T, busID int64) models.ScheduleAssignment {
	t.Helper()
	a, err := f.assignments.Assign(context.Background(), AssignInput{ScheduleID: f.sched.ID, BusID: busID, Date: f.date})
	if err != nil {
		t.Fatalf("assign bus %d: %v", busID, err)
	}
	return a
}

// trip assigns B1 and generates the 2024-06-01 trip.
func (f *fixture) trip(t *testing.T) models.Trip {
	t.Helper()
	f.assign(t, f.b1.ID)
	sum, err := f.generator.GenerateForDate(context.Background(), f.date)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(sum.Created) != 1 {
		t.Fatalf("expected 1 trip, got %d (skipped %+v)", len(sum.Created), sum.Skipped)
	}
	return sum.Created[0]
}

func (f *fixture) ticket(t *testing.T, tripID int64, seat string) models.Ticket {
	t.Helper()
	tk, err := f.tickets.CreateTicket(context.Background(), CreateTicketInput{
		TripID: tripID, SeatID: seat, Passenger: models.PassengerInfo{Name: "Ana Perez"},
	})
	if err != nil {
		t.Fatalf("create ticket %s: %v", seat, err)
	}
	return tk
}

// assertInventory checks available + seat-holding tickets == total.
func (f *fixture) assertInventory(t *testing.T, tripID int64) models.Trip {
	t.Helper()
	ctx := context.Background()
	trip, err := f.store.GetTrip(ctx, tripID)
	if err != nil {
		t.Fatalf("get trip: %v", err)
	}
	tickets, _ := f.store.ListTicketsByTrip(ctx, tripID)
	holding := 0
	seen := map[string]bool{}
	for _, tk := range tickets {
		if tk.Status.HoldsSeat() {
			holding++
			if seen[tk.SeatID] {
				t.Fatalf("seat %s held by two tickets", tk.SeatID)
			}
			seen[tk.SeatID] = true
		}
	}
	if trip.AvailableSeats+holding != trip.TotalSeats {
		t.Fatalf("inventory drift: available=%d holding=%d total=%d", trip.AvailableSeats, holding, trip.TotalSeats)
	}
	return trip
}
