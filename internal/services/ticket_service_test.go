package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
)

func TestCreateTicketSnapshotsPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	tk := f.ticket(t, trip.ID, "A1")
	if tk.Status != models.TicketPending {
		t.Fatalf("status = %s", tk.Status)
	}
	if tk.Price != 1000 || tk.Itbms != 70 || tk.TotalPrice != 1070 {
		t.Fatalf("price breakdown = %d/%d/%d", tk.Price, tk.Itbms, tk.TotalPrice)
	}
	if !strings.HasPrefix(tk.Code, "TKT-") || tk.QRCode == "" {
		t.Fatalf("code=%q qr=%q", tk.Code, tk.QRCode)
	}
	f.assertInventory(t, trip.ID)

	got, err := f.tickets.VerifyQR(ctx, tk.QRCode)
	if err != nil || got.ID != tk.ID {
		t.Fatalf("VerifyQR: %+v %v", got, err)
	}
	if _, err := f.tickets.VerifyQR(ctx, tk.Code+".AAAA"); !domain.IsValidation(err) {
		t.Fatalf("forged QR: expected ValidationError, got %v", err)
	}
}

func TestConcurrentCreateTicketSameSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.tickets.CreateTicket(ctx, CreateTicketInput{
				TripID: trip.ID, SeatID: "A1", Passenger: models.PassengerInfo{Name: "Racer"},
			})
		}(i)
	}
	close(start)
	wg.Wait()

	ok, lost := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case domain.IsSeatUnavailable(err):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || lost != 1 {
		t.Fatalf("ok=%d lost=%d", ok, lost)
	}
	tickets, _ := f.tickets.ListTicketsByTrip(ctx, trip.ID)
	if len(tickets) != 1 {
		t.Fatalf("expected exactly one ticket, got %d", len(tickets))
	}
	f.assertInventory(t, trip.ID)
}

func TestCancelPaidTicketReleasesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")

	if _, err := f.tickets.ConfirmPayment(ctx, tk.ID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	got, err := f.tickets.Cancel(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != models.TicketCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	after := f.assertInventory(t, trip.ID)
	if after.AvailableSeats != 40 {
		t.Fatalf("available = %d, want 40", after.AvailableSeats)
	}

	if _, err := f.tickets.Cancel(ctx, tk.ID); !domain.IsInvalidTransition(err) {
		t.Fatalf("second cancel: expected InvalidTransition, got %v", err)
	}
	again, _ := f.store.GetTrip(ctx, trip.ID)
	if again.AvailableSeats != 40 {
		t.Fatalf("second cancel changed inventory: %d", again.AvailableSeats)
	}

	// the seat is sellable again
	f.ticket(t, trip.ID, "A1")
	f.assertInventory(t, trip.ID)
}

func TestInvalidTicketTransitionsAreNoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")

	if _, err := f.tickets.Board(ctx, tk.ID); !domain.IsInvalidTransition(err) {
		t.Fatalf("pending->boarded: expected InvalidTransition, got %v", err)
	}
	if _, err := f.tickets.Refund(ctx, tk.ID); !domain.IsInvalidTransition(err) {
		t.Fatalf("pending->refunded: expected InvalidTransition, got %v", err)
	}
	got, _ := f.tickets.GetTicket(ctx, tk.ID)
	if got.Status != models.TicketPending {
		t.Fatalf("status changed to %s", got.Status)
	}
	f.assertInventory(t, trip.ID)
}

func TestRefundAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")

	for _, step := range []func(context.Context, int64) (models.Ticket, error){
		f.tickets.ConfirmPayment, f.tickets.Board, f.tickets.Complete, f.tickets.Refund,
	} {
		if _, err := step(ctx, tk.ID); err != nil {
			t.Fatalf("step failed: %v", err)
		}
	}
	got, _ := f.tickets.GetTicket(ctx, tk.ID)
	if got.Status != models.TicketRefunded {
		t.Fatalf("status = %s", got.Status)
	}
	after := f.assertInventory(t, trip.ID)
	if after.AvailableSeats != 40 {
		t.Fatalf("available = %d, want 40", after.AvailableSeats)
	}
}

func TestFailPaymentReleasesSeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	tk := f.ticket(t, trip.ID, "A1")

	got, err := f.tickets.FailPayment(ctx, tk.ID)
	if err != nil || got.Status != models.TicketCancelled {
		t.Fatalf("FailPayment: %+v %v", got, err)
	}
	if after := f.assertInventory(t, trip.ID); after.AvailableSeats != 40 {
		t.Fatalf("available = %d", after.AvailableSeats)
	}
}

func TestCreateTicketCompensatesOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	f.store.FailNextTicket = errors.New("disk full")
	_, err := f.tickets.CreateTicket(ctx, CreateTicketInput{TripID: trip.ID, SeatID: "A1", Passenger: models.PassengerInfo{Name: "Ana"}})
	if !domain.IsInternal(err) {
		t.Fatalf("expected InternalError, got %v", err)
	}
	after := f.assertInventory(t, trip.ID)
	if after.AvailableSeats != 40 {
		t.Fatalf("phantom seat leaked: available = %d", after.AvailableSeats)
	}
	holds, _ := f.store.ListActiveReservations(ctx, trip.ID)
	if len(holds) != 0 {
		t.Fatalf("expected no holds, got %+v", holds)
	}
	f.ticket(t, trip.ID, "A1")
}

func TestCreateTicketValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)

	if _, err := f.tickets.CreateTicket(ctx, CreateTicketInput{TripID: trip.ID, SeatID: "A1"}); !domain.IsValidation(err) {
		t.Fatalf("missing passenger: expected ValidationError, got %v", err)
	}
	if after := f.assertInventory(t, trip.ID); after.AvailableSeats != 40 {
		t.Fatalf("validation failure touched inventory")
	}
}

func TestExpirePendingAndOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	trip := f.trip(t)
	stale := f.ticket(t, trip.ID, "A1")
	paid := f.ticket(t, trip.ID, "A2")
	if _, err := f.tickets.ConfirmPayment(ctx, paid.ID); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	// a hold whose ticket was never written
	if _, err := f.inventory.Reserve(ctx, trip.ID, "A3"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	f.now = f.now.Add(20 * time.Minute)
	fresh := f.ticket(t, trip.ID, "A4")

	n, err := f.tickets.ExpirePending(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ExpirePending = %d, %v", n, err)
	}
	n, err = f.tickets.ReleaseOrphans(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ReleaseOrphans = %d, %v", n, err)
	}

	want := map[int64]models.TicketStatus{stale.ID: models.TicketCancelled, paid.ID: models.TicketPaid, fresh.ID: models.TicketPending}
	for id, status := range want {
		got, _ := f.tickets.GetTicket(ctx, id)
		if got.Status != status {
			t.Fatalf("ticket %d = %s, want %s", id, got.Status, status)
		}
	}
	if after := f.assertInventory(t, trip.ID); after.AvailableSeats != 38 {
		t.Fatalf("available = %d, want 38", after.AvailableSeats)
	}
}
