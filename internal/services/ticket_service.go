package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/google/uuid"
)

const (
	ticketCodePrefix     = "TKT-"
	defaultHoldTimeout   = 15 * time.Minute
	compensationAttempts = 3
)

// TicketService sells seats and owns the ticket state machine.
type TicketService struct {
	Trips     TripStore
	Tickets   TicketStore
	Seats     SeatStore
	Inventory SeatInventory
	Signer    utils.QRSigner
	// TaxRate is the ITBMS fraction applied on top of the trip price.
	TaxRate float64
	// HoldTimeout is how long a pending ticket keeps its seat.
	HoldTimeout time.Duration
	// RetryDelay spaces compensation attempts.
	RetryDelay time.Duration
	Now        func() time.Time
	RequestID  string
}

type CreateTicketInput struct {
	TripID    int64                `json:"tripId" binding:"required,gt=0"`
	SeatID    string               `json:"seatId" binding:"required,seat"`
	Passenger models.PassengerInfo `json:"passenger" binding:"required"`
}

func (s TicketService) holdTimeout() time.Duration {
	if s.HoldTimeout > 0 {
		return s.HoldTimeout
	}
	return defaultHoldTimeout
}

func newTicketCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ticketCodePrefix + strings.ToUpper(raw[:12])
}

// CreateTicket reserves the seat and records a pending ticket priced from the
// trip at this instant. If the ticket cannot be stored the hold is released
// before returning.
func (s TicketService) CreateTicket(ctx context.Context, in CreateTicketInput) (models.Ticket, error) {
	in.Passenger.Name = utils.NormalizeSpace(in.Passenger.Name)
	if in.Passenger.Name == "" {
		return models.Ticket{}, domain.ValidationError{Field: "passenger.name", Msg: "required"}
	}
	if in.TripID <= 0 {
		return models.Ticket{}, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}

	res, err := s.Inventory.Reserve(ctx, in.TripID, in.SeatID)
	if err != nil {
		return models.Ticket{}, err
	}

	t, err := s.persistTicket(ctx, res, in.Passenger)
	if err != nil {
		if cerr := s.compensate(ctx, res); cerr != nil {
			return models.Ticket{}, domain.InternalError{Msg: "create ticket", Err: errors.Join(err, cerr)}
		}
		if domain.IsSeatUnavailable(err) || domain.IsNotFound(err) {
			return models.Ticket{}, err
		}
		return models.Ticket{}, domain.InternalError{Msg: "create ticket", Err: err}
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "ticket", "create",
		fmt.Sprintf("ticket_id=%d trip_id=%d seat=%s code=%s total=%s", t.ID, t.TripID, t.SeatID, t.Code, utils.FormatMoney(t.TotalPrice)))
	return t, nil
}

func (s TicketService) persistTicket(ctx context.Context, res models.Reservation, p models.PassengerInfo) (models.Ticket, error) {
	trip, err := s.Trips.GetTrip(ctx, res.TripID)
	if err != nil {
		return models.Ticket{}, err
	}
	code := newTicketCode()
	qr, err := s.Signer.Sign(code)
	if err != nil {
		return models.Ticket{}, err
	}
	now := clock(s.Now)
	tax := utils.TaxOf(trip.Price, s.TaxRate)
	t := models.Ticket{
		TripID:           trip.ID,
		SeatID:           res.SeatID,
		Passenger:        p,
		Status:           models.TicketPending,
		Price:            trip.Price,
		Itbms:            tax,
		TotalPrice:       trip.Price + tax,
		Code:             code,
		QRCode:           qr,
		ReservationToken: res.Token,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Tickets.CreateTicket(ctx, &t); err != nil {
		return models.Ticket{}, err
	}
	return t, nil
}

// compensate releases a hold whose ticket was never stored. It outlives the
// caller's cancellation; the orphan sweep is the backstop if every attempt
// fails.
func (s TicketService) compensate(ctx context.Context, res models.Reservation) error {
	ctx = context.WithoutCancel(ctx)
	rid := requestID(ctx, s.RequestID)
	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		if err = s.Inventory.Release(ctx, res.TripID, res.SeatID); err == nil {
			utils.LogEvent(rid, "ticket", "compensate",
				fmt.Sprintf("trip_id=%d seat=%s attempt=%d", res.TripID, res.SeatID, attempt))
			return nil
		}
		if s.RetryDelay > 0 {
			time.Sleep(s.RetryDelay * time.Duration(attempt))
		}
	}
	utils.LogEvent(rid, "ticket", "compensate_failed",
		fmt.Sprintf("trip_id=%d seat=%s token=%s err=%v", res.TripID, res.SeatID, res.Token, err))
	return err
}

func (s TicketService) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	if id <= 0 {
		return models.Ticket{}, domain.ValidationError{Field: "ticket_id", Msg: "invalid id"}
	}
	return s.Tickets.GetTicket(ctx, id)
}

func (s TicketService) ListTicketsByTrip(ctx context.Context, tripID int64) ([]models.Ticket, error) {
	if _, err := s.Trips.GetTrip(ctx, tripID); err != nil {
		return nil, err
	}
	return s.Tickets.ListTicketsByTrip(ctx, tripID)
}

// VerifyQR resolves a scanned QR payload to its ticket.
func (s TicketService) VerifyQR(ctx context.Context, qr string) (models.Ticket, error) {
	qr = strings.TrimSpace(qr)
	code, err := s.Signer.Verify(qr)
	if err != nil {
		return models.Ticket{}, domain.ValidationError{Field: "qr", Msg: "invalid ticket QR", Err: err}
	}
	t, err := s.Tickets.GetTicketByCode(ctx, code)
	if err != nil {
		return models.Ticket{}, err
	}
	if t.QRCode != qr {
		return models.Ticket{}, domain.ValidationError{Field: "qr", Msg: "invalid ticket QR"}
	}
	return t, nil
}

// ConfirmPayment is the payment authority's success hook.
func (s TicketService) ConfirmPayment(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketPaid, "pay")
}

// FailPayment is the payment authority's failure hook; the seat goes back.
func (s TicketService) FailPayment(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketCancelled, "payment_failed")
}

// Board is the scanner hook.
func (s TicketService) Board(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketBoarded, "board")
}

func (s TicketService) Complete(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketCompleted, "complete")
}

func (s TicketService) Cancel(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketCancelled, "cancel")
}

func (s TicketService) Refund(ctx context.Context, id int64) (models.Ticket, error) {
	return s.transition(ctx, id, models.TicketRefunded, "refund")
}

func (s TicketService) transition(ctx context.Context, id int64, to models.TicketStatus, action string) (models.Ticket, error) {
	t, err := s.GetTicket(ctx, id)
	if err != nil {
		return models.Ticket{}, err
	}
	if !t.Status.CanTransition(to) {
		return models.Ticket{}, domain.InvalidTransitionError{Resource: "ticket", From: string(t.Status), To: string(to)}
	}
	release := t.Status.ReleasesSeat(to)
	updated, err := s.Tickets.TransitionTicket(ctx, t.ID, t.Status, to, release, clock(s.Now))
	if err != nil {
		return models.Ticket{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "ticket", action,
		fmt.Sprintf("ticket_id=%d from=%s to=%s release=%t", t.ID, t.Status, to, release))
	if release {
		s.Inventory.notifyReleased(ctx, t.TripID, t.SeatID)
	}
	return updated, nil
}

// ExpirePending cancels pending tickets older than the hold timeout. Tickets
// paid in the meantime are left alone.
func (s TicketService) ExpirePending(ctx context.Context) (int, error) {
	now := clock(s.Now)
	stale, err := s.Tickets.ListPendingBefore(ctx, now.Add(-s.holdTimeout()))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range stale {
		if _, err := s.Tickets.TransitionTicket(ctx, t.ID, models.TicketPending, models.TicketCancelled, true, now); err != nil {
			if domain.IsInvalidTransition(err) {
				continue
			}
			return n, err
		}
		n++
		s.Inventory.notifyReleased(ctx, t.TripID, t.SeatID)
	}
	if n > 0 {
		utils.LogEvent(requestID(ctx, s.RequestID), "ticket", "expire_pending", fmt.Sprintf("expired=%d", n))
	}
	return n, nil
}

// ReleaseOrphans frees holds that never got a ticket.
func (s TicketService) ReleaseOrphans(ctx context.Context) (int, error) {
	now := clock(s.Now)
	n, err := s.Seats.ReleaseOrphans(ctx, now.Add(-s.holdTimeout()), now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		utils.LogEvent(requestID(ctx, s.RequestID), "inventory", "release_orphans", fmt.Sprintf("released=%d", n))
	}
	return n, nil
}
