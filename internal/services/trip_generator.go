package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

// maxGenerateSpan bounds GenerateRange.
const maxGenerateSpan = 31

// TripGenerator materializes trips from the assignments of a date. The key
// (schedule, bus, date) makes every run repeatable.
type TripGenerator struct {
	Schedules   ScheduleStore
	Routes      RouteStore
	Buses       BusRegistry
	Assignments AssignmentStore
	Trips       TripStore
	Tickets     TicketStore
	Now         func() time.Time
	RequestID   string
}

// GenerateForDate creates the missing trips for date. Slots that are already
// generated or cannot run are reported in Skipped, not as errors. An error is
// returned only when storage fails; the partial summary is still returned and
// a retry picks up where the run stopped.
func (g TripGenerator) GenerateForDate(ctx context.Context, date time.Time) (models.GenerationSummary, error) {
	date = utils.DateOnly(date)
	sum := models.GenerationSummary{Date: utils.FormatDate(date), Created: []models.Trip{}, Skipped: []models.Skip{}}
	rid := requestID(ctx, g.RequestID)

	assignments, err := g.Assignments.ListAssignmentsByDate(ctx, date)
	if err != nil {
		return sum, domain.InternalError{Msg: "list assignments", Err: err}
	}
	active, err := g.Schedules.ListActiveSchedules(ctx)
	if err != nil {
		return sum, domain.InternalError{Msg: "list schedules", Err: err}
	}
	assigned := map[int64]bool{}
	for _, a := range assignments {
		assigned[a.ScheduleID] = true
	}
	for _, sc := range active {
		if !assigned[sc.ID] {
			sum.Skipped = append(sum.Skipped, models.Skip{ScheduleID: sc.ID, Reason: models.SkipNoBusAssigned})
		}
	}

	schedules := map[int64]models.Schedule{}
	routes := map[int64]models.Route{}
	for _, a := range assignments {
		skip, trip, err := g.generateOne(ctx, date, a, schedules, routes)
		if err != nil {
			utils.LogEvent(rid, "generator", "generate_failed",
				fmt.Sprintf("date=%s assignment_id=%d err=%v", sum.Date, a.ID, err))
			return sum, domain.InternalError{Msg: fmt.Sprintf("generate assignment %d", a.ID), Err: err}
		}
		if skip != nil {
			sum.Skipped = append(sum.Skipped, *skip)
			continue
		}
		sum.Created = append(sum.Created, trip)
	}

	counts := sum.Counts()
	utils.LogEvent(rid, "generator", "generate",
		fmt.Sprintf("date=%s created=%d skipped=%d already_exists=%d no_bus=%d bus_inactive=%d",
			sum.Date, len(sum.Created), len(sum.Skipped), counts[models.SkipAlreadyExists],
			counts[models.SkipNoBusAssigned], counts[models.SkipBusInactive]))
	return sum, nil
}

func (g TripGenerator) generateOne(ctx context.Context, date time.Time, a models.ScheduleAssignment,
	schedules map[int64]models.Schedule, routes map[int64]models.Route) (*models.Skip, models.Trip, error) {
	skip := func(reason models.SkipReason, detail string) *models.Skip {
		return &models.Skip{ScheduleID: a.ScheduleID, AssignmentID: a.ID, BusID: a.BusID, Reason: reason, Detail: detail}
	}

	if a.Status == models.AssignmentCancelled {
		return skip(models.SkipCancelled, ""), models.Trip{}, nil
	}
	existing, found, err := g.Trips.FindTripByKey(ctx, a.ScheduleID, a.BusID, date)
	if err != nil {
		return nil, models.Trip{}, err
	}
	alreadyExists := func(tripID int64) *models.Skip {
		s := skip(models.SkipAlreadyExists, "")
		s.TripID = tripID
		return s
	}
	// a trip left behind by a removed assignment is reopened below
	detached := found && existing.AssignmentID == nil && existing.Status == models.TripCancelled
	if found && !detached {
		return alreadyExists(existing.ID), models.Trip{}, nil
	}

	sc, ok := schedules[a.ScheduleID]
	if !ok {
		var err error
		if sc, err = g.Schedules.GetSchedule(ctx, a.ScheduleID); err != nil {
			return nil, models.Trip{}, err
		}
		schedules[sc.ID] = sc
	}
	if !sc.IsActive {
		return skip(models.SkipScheduleInactive, ""), models.Trip{}, nil
	}
	route, ok := routes[sc.RouteID]
	if !ok {
		var err error
		if route, err = g.Routes.GetRoute(ctx, sc.RouteID); err != nil {
			return nil, models.Trip{}, err
		}
		routes[route.ID] = route
	}
	if !route.IsActive {
		return skip(models.SkipRouteInactive, ""), models.Trip{}, nil
	}

	bus, err := g.Buses.GetBus(ctx, a.BusID)
	if domain.IsNotFound(err) {
		return skip(models.SkipBusInactive, "bus not in registry"), models.Trip{}, nil
	}
	if err != nil {
		return nil, models.Trip{}, err
	}
	if !bus.IsActive {
		return skip(models.SkipBusInactive, ""), models.Trip{}, nil
	}
	if bus.Capacity <= 0 {
		return skip(models.SkipBusInactive, "bus has no capacity"), models.Trip{}, nil
	}

	now := clock(g.Now)
	if detached {
		trip, err := g.Trips.ReattachTrip(ctx, existing.ID, a.ID, now)
		if domain.IsConflict(err) {
			return alreadyExists(existing.ID), models.Trip{}, nil
		}
		if err != nil {
			return nil, models.Trip{}, err
		}
		utils.LogEvent(requestID(ctx, g.RequestID), "generator", "reopen",
			fmt.Sprintf("trip_id=%d assignment_id=%d", trip.ID, a.ID))
		return nil, trip, nil
	}

	assignmentID := a.ID
	trip := models.Trip{
		AssignmentID:   &assignmentID,
		ScheduleID:     sc.ID,
		RouteID:        route.ID,
		BusID:          bus.ID,
		Date:           date,
		DepartureTime:  utils.AtHour(date, sc.Hour),
		Status:         models.TripScheduled,
		TotalSeats:     bus.Capacity,
		AvailableSeats: bus.Capacity,
		Price:          sc.PriceFor(route),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if route.DurationMinutes > 0 {
		arrival := trip.DepartureTime.Add(time.Duration(route.DurationMinutes) * time.Minute)
		trip.ArrivalEstimate = &arrival
	}
	if err := g.Trips.CreateTrip(ctx, &trip); err != nil {
		// lost a race with a concurrent run
		var ae domain.AlreadyExistsError
		if errors.As(err, &ae) {
			s := skip(models.SkipAlreadyExists, "")
			s.TripID = ae.ExistingID
			return s, models.Trip{}, nil
		}
		return nil, models.Trip{}, err
	}
	return nil, trip, nil
}

// GenerateRange runs GenerateForDate for each day in [from, to].
func (g TripGenerator) GenerateRange(ctx context.Context, from, to time.Time) ([]models.GenerationSummary, error) {
	from, to = utils.DateOnly(from), utils.DateOnly(to)
	if to.Before(from) {
		return nil, domain.ValidationError{Field: "to", Msg: "must not be before from"}
	}
	if to.Sub(from) > maxGenerateSpan*24*time.Hour {
		return nil, domain.ValidationError{Field: "to", Msg: fmt.Sprintf("range is limited to %d days", maxGenerateSpan)}
	}
	out := []models.GenerationSummary{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		sum, err := g.GenerateForDate(ctx, d)
		out = append(out, sum)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (g TripGenerator) GetTrip(ctx context.Context, tripID int64) (models.Trip, error) {
	if tripID <= 0 {
		return models.Trip{}, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}
	return g.Trips.GetTrip(ctx, tripID)
}

// TransitionTrip moves a trip through its operational states. Reaching
// completed or cancelled settles the trip's tickets, see settleTickets.
func (g TripGenerator) TransitionTrip(ctx context.Context, tripID int64, to models.TripStatus) (models.Trip, error) {
	if !to.Valid() {
		return models.Trip{}, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", to)}
	}
	t, err := g.GetTrip(ctx, tripID)
	if err != nil {
		return models.Trip{}, err
	}
	if !t.Status.CanTransition(to) {
		return models.Trip{}, domain.InvalidTransitionError{Resource: "trip", From: string(t.Status), To: string(to)}
	}
	if err := g.Trips.UpdateTripStatus(ctx, t.ID, t.Status, to); err != nil {
		return models.Trip{}, err
	}
	rid := requestID(ctx, g.RequestID)
	utils.LogEvent(rid, "trip", "transition", fmt.Sprintf("trip_id=%d from=%s to=%s", t.ID, t.Status, to))

	if to.Terminal() && g.Tickets != nil {
		if err := g.settleTickets(ctx, rid, t.ID, to); err != nil {
			return models.Trip{}, err
		}
	}
	return g.Trips.GetTrip(ctx, t.ID)
}

type ticketMove struct {
	from, to models.TicketStatus
}

// settleTickets closes the seat-holding tickets of a trip that reached a
// terminal state. Unpaid holds are cancelled on both. A completed trip
// completes its boarded tickets and leaves paid no-shows paid. A cancelled
// trip refunds paid and boarded tickets.
func (g TripGenerator) settleTickets(ctx context.Context, rid string, tripID int64, status models.TripStatus) error {
	moves := []ticketMove{{models.TicketPending, models.TicketCancelled}}
	if status == models.TripCompleted {
		moves = append(moves, ticketMove{models.TicketBoarded, models.TicketCompleted})
	} else {
		moves = append(moves,
			ticketMove{models.TicketPaid, models.TicketRefunded},
			ticketMove{models.TicketBoarded, models.TicketRefunded})
	}

	now := clock(g.Now)
	for _, m := range moves {
		list, err := g.Tickets.ListByTripAndStatus(ctx, tripID, m.from)
		if err != nil {
			return err
		}
		moved := 0
		for _, tk := range list {
			if _, err := g.Tickets.TransitionTicket(ctx, tk.ID, m.from, m.to, true, now); err != nil {
				// changed by a concurrent call
				if domain.IsInvalidTransition(err) {
					continue
				}
				return err
			}
			moved++
		}
		if moved > 0 {
			utils.LogEvent(rid, "trip", "settle_tickets",
				fmt.Sprintf("trip_id=%d from=%s to=%s count=%d", tripID, m.from, m.to, moved))
		}
	}
	return nil
}
