package services

import (
	"context"
	"time"

	"busline/internal/domain/models"
)

// RouteStore is the read side of the route catalog.
type RouteStore interface {
	GetRoute(ctx context.Context, id int64) (models.Route, error)
	ListRoutes(ctx context.Context, activeOnly bool) ([]models.Route, error)
}

type ScheduleStore interface {
	GetSchedule(ctx context.Context, id int64) (models.Schedule, error)
	ListSchedulesByRoute(ctx context.Context, routeID int64) ([]models.Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]models.Schedule, error)
	CreateSchedule(ctx context.Context, s *models.Schedule) error
}

// BusRegistry is the external vehicle registry.
type BusRegistry interface {
	GetBus(ctx context.Context, id int64) (models.Bus, error)
}

type AssignmentStore interface {
	// CreateAssignment inserts a and its initial audit row atomically.
	// Returns domain.DuplicateAssignmentError when the slot is taken.
	CreateAssignment(ctx context.Context, a *models.ScheduleAssignment, initial models.BusAssignmentChange) error
	GetAssignment(ctx context.Context, id int64) (models.ScheduleAssignment, error)
	ListAssignmentsByDate(ctx context.Context, date time.Time) ([]models.ScheduleAssignment, error)
	// ApplyBusChange appends change, moves the assignment to change.NewBusID
	// and repoints any trip generated from it, all in one unit. It fails with
	// domain.ConflictError when the assignment's bus is no longer
	// change.OldBusID.
	ApplyBusChange(ctx context.Context, change models.BusAssignmentChange) (models.ScheduleAssignment, error)
	UpdateAssignmentStatus(ctx context.Context, id int64, from, to models.AssignmentStatus) error
	// DeleteAssignment removes the assignment unless its trip has sold
	// tickets (domain.ConflictError). An unsold trip is cancelled and
	// detached; see TripStore.ReattachTrip.
	DeleteAssignment(ctx context.Context, id int64) error
	ListChanges(ctx context.Context, assignmentID int64) ([]models.BusAssignmentChange, error)
}

type TripStore interface {
	// CreateTrip returns domain.AlreadyExistsError when the
	// (schedule, bus, date) key is taken.
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id int64) (models.Trip, error)
	FindTripByKey(ctx context.Context, scheduleID, busID int64, date time.Time) (models.Trip, bool, error)
	FindTripByAssignment(ctx context.Context, assignmentID int64) (models.Trip, bool, error)
	ListTripsByDate(ctx context.Context, date time.Time) ([]models.Trip, error)
	UpdateTripStatus(ctx context.Context, id int64, from, to models.TripStatus) error
	// ReattachTrip binds a cancelled trip with no assignment to assignmentID
	// and reopens it as scheduled, recounting availability from live holds.
	// Returns domain.ConflictError when the trip is not detached.
	ReattachTrip(ctx context.Context, tripID, assignmentID int64, at time.Time) (models.Trip, error)
}

// SeatStore owns the per-seat holds and the trip availability counter.
type SeatStore interface {
	// Reserve atomically checks the trip is bookable and the seat is free,
	// records the hold and decrements availability.
	Reserve(ctx context.Context, tripID int64, seatID, token string, at time.Time) (models.Reservation, error)
	// Release frees the live hold on (trip, seat), if any, and increments
	// availability up to total seats.
	Release(ctx context.Context, tripID int64, seatID string, at time.Time) (bool, error)
	ListActiveReservations(ctx context.Context, tripID int64) ([]models.Reservation, error)
	// ReleaseOrphans frees holds older than cutoff that never got a ticket.
	ReleaseOrphans(ctx context.Context, cutoff, at time.Time) (int, error)
}

type TicketStore interface {
	// CreateTicket returns domain.SeatUnavailableError if another active
	// ticket already holds the seat.
	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id int64) (models.Ticket, error)
	GetTicketByCode(ctx context.Context, code string) (models.Ticket, error)
	ListTicketsByTrip(ctx context.Context, tripID int64) ([]models.Ticket, error)
	// TransitionTicket moves the ticket from -> to as a compare-and-set and,
	// when release is set, frees its seat hold in the same unit.
	TransitionTicket(ctx context.Context, id int64, from, to models.TicketStatus, release bool, at time.Time) (models.Ticket, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Ticket, error)
	ListByTripAndStatus(ctx context.Context, tripID int64, status models.TicketStatus) ([]models.Ticket, error)
}

// SeatEvents fans seat changes out to seat-selection clients.
type SeatEvents interface {
	SeatChanged(ctx context.Context, ev models.SeatEvent)
}

type noopEvents struct{}

func (noopEvents) SeatChanged(context.Context, models.SeatEvent) {}

// NoopEvents discards seat events.
var NoopEvents SeatEvents = noopEvents{}
