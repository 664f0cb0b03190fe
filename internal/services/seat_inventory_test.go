package services

import (
	"context"
	"sync"
	"testing"

	"busline/internal/domain"
	"busline/internal/domain/models"
)

func TestConcurrentReserveSameSeat(t *testing.T) {
	f := newFixture(t)
	trip := f.trip(t)

	const racers = 16
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		wins        int
		unavailable int
	)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.inventory.Reserve(context.Background(), trip.ID, "A1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case domain.IsSeatUnavailable(err):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 || unavailable != racers-1 {
		t.Fatalf("wins=%d unavailable=%d", wins, unavailable)
	}
	got, _ := f.store.GetTrip(context.Background(), trip.ID)
	if got.AvailableSeats != 39 {
		t.Fatalf("available = %d, want 39", got.AvailableSeats)
	}
}

func TestReserveChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	if _, err := f.inventory.Reserve(ctx, trip.ID, "Z9"); !domain.IsValidation(err) {
		t.Fatalf("unknown seat: expected ValidationError, got %v", err)
	}
	if _, err := f.inventory.Reserve(ctx, trip.ID, " "); !domain.IsValidation(err) {
		t.Fatalf("blank seat: expected ValidationError, got %v", err)
	}
	if _, err := f.inventory.Reserve(ctx, 999, "A1"); !domain.IsNotFound(err) {
		t.Fatalf("unknown trip: expected NotFound, got %v", err)
	}

	if _, err := f.generator.TransitionTrip(ctx, trip.ID, models.TripDelayed); err != nil {
		t.Fatalf("delay trip: %v", err)
	}
	if _, err := f.inventory.Reserve(ctx, trip.ID, "A1"); !domain.IsTripNotBookable(err) {
		t.Fatalf("delayed trip: expected TripNotBookable, got %v", err)
	}
}

func TestReleaseIsBoundedAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	if _, err := f.inventory.Reserve(ctx, trip.ID, "a1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.inventory.Release(ctx, trip.ID, "A1"); err != nil {
			t.Fatalf("Release #%d: %v", i+1, err)
		}
	}
	// never held
	if err := f.inventory.Release(ctx, trip.ID, "B4"); err != nil {
		t.Fatalf("Release free seat: %v", err)
	}
	got, _ := f.store.GetTrip(ctx, trip.ID)
	if got.AvailableSeats != got.TotalSeats {
		t.Fatalf("available = %d, want %d", got.AvailableSeats, got.TotalSeats)
	}

	evs := f.events.all()
	if len(evs) != 2 {
		t.Fatalf("expected reserve+release events, got %+v", evs)
	}
	if evs[0].State != models.SeatSold || evs[0].Available != 39 || evs[1].State != models.SeatAvailable || evs[1].Available != 40 {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestSeatMap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	f.ticket(t, trip.ID, "A2")
	cancelled := f.ticket(t, trip.ID, "C3")
	if _, err := f.tickets.Cancel(ctx, cancelled.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	seats, err := f.inventory.SeatMap(ctx, trip.ID)
	if err != nil {
		t.Fatalf("SeatMap: %v", err)
	}
	if len(seats) != 40 {
		t.Fatalf("expected 40 seats, got %d", len(seats))
	}
	for _, s := range seats {
		want := models.SeatAvailable
		if s.SeatID == "A2" {
			want = models.SeatSold
		}
		if s.State != want {
			t.Fatalf("seat %s = %s, want %s", s.SeatID, s.State, want)
		}
	}
}
