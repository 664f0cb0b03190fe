package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

const initialAssignmentReason = "initial assignment"

// AssignmentService is the ledger binding buses to schedules per date. Every
// bus change is appended to the audit log before the assignment is updated.
type AssignmentService struct {
	Schedules   ScheduleStore
	Buses       BusRegistry
	Assignments AssignmentStore
	// Trips and Tickets, when set, let Reassign check the seats already
	// held on the generated trip against the new bus.
	Trips   TripStore
	Tickets TicketStore
	// GraceDays is how far in the past a date may still be assigned.
	GraceDays int
	Now       func() time.Time
	RequestID string
}

type AssignInput struct {
	ScheduleID  int64     `json:"scheduleId" binding:"required,gt=0"`
	BusID       int64     `json:"busId" binding:"required,gt=0"`
	Date        time.Time `json:"-"`
	DriverID    *int64    `json:"driverId"`
	AssistantID *int64    `json:"assistantId"`
}

func (s AssignmentService) Assign(ctx context.Context, in AssignInput) (models.ScheduleAssignment, error) {
	if in.ScheduleID <= 0 {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "schedule_id", Msg: "invalid id"}
	}
	if in.BusID <= 0 {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "bus_id", Msg: "invalid id"}
	}
	if in.Date.IsZero() {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "date", Msg: "required"}
	}
	now := clock(s.Now)
	date := utils.DateOnly(in.Date)
	earliest := utils.DateOnly(now).AddDate(0, 0, -s.GraceDays)
	if date.Before(earliest) {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "date",
			Msg: fmt.Sprintf("%s is before the earliest assignable date %s", utils.FormatDate(date), utils.FormatDate(earliest))}
	}

	sc, err := s.Schedules.GetSchedule(ctx, in.ScheduleID)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	if !sc.IsActive {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "schedule_id", Msg: "schedule is inactive"}
	}
	bus, err := s.Buses.GetBus(ctx, in.BusID)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	if !bus.IsActive {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "bus_id", Msg: "bus is inactive"}
	}

	a := models.ScheduleAssignment{
		ScheduleID:  sc.ID,
		BusID:       bus.ID,
		Date:        date,
		Status:      models.AssignmentAssigned,
		DriverID:    in.DriverID,
		AssistantID: in.AssistantID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	initial := models.BusAssignmentChange{
		NewBusID:  bus.ID,
		Reason:    initialAssignmentReason,
		ChangedBy: domain.ActorFromContext(ctx),
		ChangedAt: now,
	}
	if err := s.Assignments.CreateAssignment(ctx, &a, initial); err != nil {
		return models.ScheduleAssignment{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "assignment", "assign",
		fmt.Sprintf("assignment_id=%d schedule_id=%d bus_id=%d date=%s", a.ID, a.ScheduleID, a.BusID, utils.FormatDate(date)))
	return a, nil
}

// Reassign swaps the bus of an assignment. The generated trip, if any, keeps
// its inventory, tickets and status; only its bus reference moves.
func (s AssignmentService) Reassign(ctx context.Context, assignmentID, newBusID int64, reason, changedBy string) (models.ScheduleAssignment, error) {
	reason = utils.NormalizeSpace(reason)
	if reason == "" {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "reason", Msg: "required for a bus change"}
	}
	if newBusID <= 0 {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "bus_id", Msg: "invalid id"}
	}
	a, err := s.Assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	if a.Status == models.AssignmentCompleted || a.Status == models.AssignmentCancelled {
		return models.ScheduleAssignment{}, domain.ConflictError{Resource: "assignment", Msg: fmt.Sprintf("assignment is %s", a.Status)}
	}
	if a.BusID == newBusID {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "bus_id", Msg: "assignment already uses this bus"}
	}
	bus, err := s.Buses.GetBus(ctx, newBusID)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	if !bus.IsActive {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "bus_id", Msg: "bus is inactive"}
	}
	if err := s.checkHeldSeats(ctx, a.ID, bus); err != nil {
		return models.ScheduleAssignment{}, err
	}

	changedBy = strings.TrimSpace(changedBy)
	if changedBy == "" {
		changedBy = domain.ActorFromContext(ctx)
	}
	oldBus := a.BusID
	change := models.BusAssignmentChange{
		AssignmentID: a.ID,
		OldBusID:     &oldBus,
		NewBusID:     newBusID,
		Reason:       reason,
		ChangedBy:    changedBy,
		ChangedAt:    clock(s.Now),
	}
	updated, err := s.Assignments.ApplyBusChange(ctx, change)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "assignment", "reassign",
		fmt.Sprintf("assignment_id=%d old_bus=%d new_bus=%d by=%s", a.ID, oldBus, newBusID, changedBy))
	return updated, nil
}

// checkHeldSeats rejects a bus that lacks a seat held on the assignment's
// trip or has fewer seats than the trip sells.
func (s AssignmentService) checkHeldSeats(ctx context.Context, assignmentID int64, bus models.Bus) error {
	if s.Trips == nil || s.Tickets == nil {
		return nil
	}
	trip, ok, err := s.Trips.FindTripByAssignment(ctx, assignmentID)
	if err != nil || !ok {
		return err
	}
	if bus.Capacity < trip.TotalSeats {
		return domain.ConflictError{Resource: "assignment",
			Msg: fmt.Sprintf("bus %d has %d seats, trip %d sells %d", bus.ID, bus.Capacity, trip.ID, trip.TotalSeats)}
	}
	tickets, err := s.Tickets.ListTicketsByTrip(ctx, trip.ID)
	if err != nil {
		return err
	}
	for _, tk := range tickets {
		if tk.Status.HoldsSeat() && !bus.HasSeat(tk.SeatID) {
			return domain.ConflictError{Resource: "assignment",
				Msg: fmt.Sprintf("seat %s of ticket %d does not exist on bus %d", tk.SeatID, tk.ID, bus.ID)}
		}
	}
	return nil
}

// Remove deletes an assignment unless its trip already sold tickets. Audit
// rows are kept.
func (s AssignmentService) Remove(ctx context.Context, assignmentID int64) error {
	if assignmentID <= 0 {
		return domain.ValidationError{Field: "assignment_id", Msg: "invalid id"}
	}
	if err := s.Assignments.DeleteAssignment(ctx, assignmentID); err != nil {
		return err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "assignment", "remove", fmt.Sprintf("assignment_id=%d", assignmentID))
	return nil
}

func (s AssignmentService) Get(ctx context.Context, assignmentID int64) (models.ScheduleAssignment, error) {
	return s.Assignments.GetAssignment(ctx, assignmentID)
}

// History returns the audit rows of an assignment, oldest first.
func (s AssignmentService) History(ctx context.Context, assignmentID int64) ([]models.BusAssignmentChange, error) {
	if _, err := s.Assignments.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	return s.Assignments.ListChanges(ctx, assignmentID)
}

// ListForDate returns the assignments of a date, optionally narrowed to one
// route (routeID 0 means all).
func (s AssignmentService) ListForDate(ctx context.Context, date time.Time, routeID int64) ([]models.ScheduleAssignment, error) {
	all, err := s.Assignments.ListAssignmentsByDate(ctx, utils.DateOnly(date))
	if err != nil {
		return nil, err
	}
	if routeID <= 0 {
		return all, nil
	}
	routeOf := map[int64]int64{}
	out := make([]models.ScheduleAssignment, 0, len(all))
	for _, a := range all {
		rid, ok := routeOf[a.ScheduleID]
		if !ok {
			sc, err := s.Schedules.GetSchedule(ctx, a.ScheduleID)
			if err != nil {
				return nil, err
			}
			rid = sc.RouteID
			routeOf[a.ScheduleID] = rid
		}
		if rid == routeID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s AssignmentService) SetStatus(ctx context.Context, assignmentID int64, to models.AssignmentStatus) (models.ScheduleAssignment, error) {
	if !to.Valid() {
		return models.ScheduleAssignment{}, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", to)}
	}
	a, err := s.Assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	if !a.Status.CanTransition(to) {
		return models.ScheduleAssignment{}, domain.InvalidTransitionError{Resource: "assignment", From: string(a.Status), To: string(to)}
	}
	if err := s.Assignments.UpdateAssignmentStatus(ctx, a.ID, a.Status, to); err != nil {
		return models.ScheduleAssignment{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "assignment", "set_status",
		fmt.Sprintf("assignment_id=%d from=%s to=%s", a.ID, a.Status, to))
	a.Status = to
	return a, nil
}
