package models

import "time"

type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketPaid      TicketStatus = "paid"
	TicketBoarded   TicketStatus = "boarded"
	TicketCompleted TicketStatus = "completed"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

// ticketTransitions lists every legal move; the flag says whether the move
// gives the seat back to inventory.
var ticketTransitions = map[TicketStatus]map[TicketStatus]bool{
	TicketPending:   {TicketPaid: false, TicketCancelled: true},
	TicketPaid:      {TicketBoarded: false, TicketCancelled: true, TicketRefunded: true},
	TicketBoarded:   {TicketCompleted: true, TicketRefunded: true},
	TicketCompleted: {TicketRefunded: true},
}

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketPending, TicketPaid, TicketBoarded, TicketCompleted, TicketCancelled, TicketRefunded:
		return true
	}
	return false
}

func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled || s == TicketRefunded
}

// HoldsSeat reports whether a ticket in this status occupies its seat for the
// double-booking guard.
func (s TicketStatus) HoldsSeat() bool {
	return s == TicketPending || s == TicketPaid || s == TicketBoarded
}

// Sold reports whether the ticket counts as sold (blocks assignment removal).
func (s TicketStatus) Sold() bool {
	return s != TicketCancelled && s != TicketRefunded
}

func (s TicketStatus) CanTransition(to TicketStatus) bool {
	_, ok := ticketTransitions[s][to]
	return ok
}

// ReleasesSeat reports whether moving from s to to frees the seat. Leaving the
// seat-holding statuses always does; completed -> refunded asks again and the
// inventory ignores a hold that is already gone.
func (s TicketStatus) ReleasesSeat(to TicketStatus) bool {
	return ticketTransitions[s][to]
}

// ActiveTicketStatuses hold a seat.
var ActiveTicketStatuses = []TicketStatus{TicketPending, TicketPaid, TicketBoarded}

// SoldTicketStatuses block removal of the assignment behind the trip.
var SoldTicketStatuses = []TicketStatus{TicketPending, TicketPaid, TicketBoarded, TicketCompleted}

type PassengerInfo struct {
	Name       string `json:"name" binding:"required,max=255"`
	DocumentID string `json:"documentId" binding:"max=64"`
	Phone      string `json:"phone" binding:"max=32"`
	Email      string `json:"email" binding:"omitempty,email"`
}

type Ticket struct {
	ID               int64         `json:"id"`
	TripID           int64         `json:"tripId"`
	SeatID           string        `json:"seatId"`
	Passenger        PassengerInfo `json:"passenger"`
	Status           TicketStatus  `json:"status"`
	Price            int64         `json:"price"`
	Itbms            int64         `json:"itbms"`
	TotalPrice       int64         `json:"totalPrice"`
	Code             string        `json:"code"`
	QRCode           string        `json:"qrCode"`
	ReservationToken string        `json:"-"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}
