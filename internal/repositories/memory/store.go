// Package memory is a mutex-guarded, process-local implementation of every
// repository port. Each method is one atomic unit, matching the
// transactional MySQL repositories. It backs tests and --in-memory runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

type slotKey struct {
	scheduleID int64
	busID      int64
	date       string
}

type holdKey struct {
	tripID int64
	seatID string
}

type Store struct {
	mu sync.Mutex

	nextID int64

	routes      map[int64]models.Route
	schedules   map[int64]models.Schedule
	buses       map[int64]models.Bus
	assignments map[int64]models.ScheduleAssignment
	slots       map[slotKey]int64
	changes     []models.BusAssignmentChange
	trips       map[int64]models.Trip
	tripSlots   map[slotKey]int64
	holds       map[string]models.Reservation
	liveHolds   map[holdKey]string
	tickets     map[int64]models.Ticket

	// FailNextTicket, when set, is returned once by CreateTicket.
	FailNextTicket error
}

func New() *Store {
	return &Store{
		routes:      map[int64]models.Route{},
		schedules:   map[int64]models.Schedule{},
		buses:       map[int64]models.Bus{},
		assignments: map[int64]models.ScheduleAssignment{},
		slots:       map[slotKey]int64{},
		trips:       map[int64]models.Trip{},
		tripSlots:   map[slotKey]int64{},
		holds:       map[string]models.Reservation{},
		liveHolds:   map[holdKey]string{},
		tickets:     map[int64]models.Ticket{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func key(scheduleID, busID int64, date time.Time) slotKey {
	return slotKey{scheduleID: scheduleID, busID: busID, date: utils.FormatDate(date)}
}

// Seeding helpers. IDs are assigned when zero.

func (s *Store) AddRoute(r models.Route) models.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.routes[r.ID] = r
	return r
}

func (s *Store) AddBus(b models.Bus) models.Bus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	b.SeatMap = append([]string(nil), b.SeatMap...)
	s.buses[b.ID] = b
	return b
}

// SetBusActive flips the registry's active flag.
func (s *Store) SetBusActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buses[id]
	b.IsActive = active
	s.buses[id] = b
}

// seen keeps generated IDs clear of explicitly seeded ones.
func (s *Store) seen(id int64) {
	if id > s.nextID {
		s.nextID = id
	}
}

func (s *Store) UpsertRoute(_ context.Context, r models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		return domain.ValidationError{Field: "id", Msg: "route id is required"}
	}
	s.seen(r.ID)
	s.routes[r.ID] = r
	return nil
}

func (s *Store) UpsertSchedule(_ context.Context, sc models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc.ID == 0 {
		return domain.ValidationError{Field: "id", Msg: "schedule id is required"}
	}
	if _, ok := s.routes[sc.RouteID]; !ok {
		return domain.NotFoundError{Resource: "route", ID: sc.RouteID}
	}
	s.seen(sc.ID)
	s.schedules[sc.ID] = sc
	return nil
}

func (s *Store) UpsertBus(_ context.Context, b models.Bus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		return domain.ValidationError{Field: "id", Msg: "bus id is required"}
	}
	if len(b.SeatMap) > 0 && len(b.SeatMap) != b.Capacity {
		return domain.ValidationError{Field: "seatMap", Msg: fmt.Sprintf("bus %s has %d seats for capacity %d", b.Plate, len(b.SeatMap), b.Capacity)}
	}
	s.seen(b.ID)
	b.SeatMap = append([]string(nil), b.SeatMap...)
	s.buses[b.ID] = b
	return nil
}

// Routes

func (s *Store) GetRoute(_ context.Context, id int64) (models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	if !ok {
		return models.Route{}, domain.NotFoundError{Resource: "route", ID: id}
	}
	return r, nil
}

func (s *Store) ListRoutes(_ context.Context, activeOnly bool) ([]models.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Route{}
	for _, r := range s.routes {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Schedules

func (s *Store) GetSchedule(_ context.Context, id int64) (models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule", ID: id}
	}
	return sc, nil
}

func (s *Store) ListSchedulesByRoute(_ context.Context, routeID int64) ([]models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Schedule{}
	for _, sc := range s.schedules {
		if sc.RouteID == routeID {
			out = append(out, sc)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (s *Store) ListActiveSchedules(_ context.Context) ([]models.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Schedule{}
	for _, sc := range s.schedules {
		if sc.IsActive {
			out = append(out, sc)
		}
	}
	sortSchedules(out)
	return out, nil
}

func (s *Store) CreateSchedule(_ context.Context, sc *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routes[sc.RouteID]; !ok {
		return domain.NotFoundError{Resource: "route", ID: sc.RouteID}
	}
	if sc.ID == 0 {
		sc.ID = s.id()
	}
	s.schedules[sc.ID] = *sc
	return nil
}

func sortSchedules(in []models.Schedule) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Hour != in[j].Hour {
			return in[i].Hour < in[j].Hour
		}
		return in[i].ID < in[j].ID
	})
}

// Bus registry

func (s *Store) GetBus(_ context.Context, id int64) (models.Bus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buses[id]
	if !ok {
		return models.Bus{}, domain.NotFoundError{Resource: "bus", ID: id}
	}
	b.SeatMap = append([]string(nil), b.SeatMap...)
	return b, nil
}

// Assignments

func (s *Store) CreateAssignment(_ context.Context, a *models.ScheduleAssignment, initial models.BusAssignmentChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(a.ScheduleID, a.BusID, a.Date)
	if _, taken := s.slots[k]; taken {
		return domain.DuplicateAssignmentError{ScheduleID: a.ScheduleID, BusID: a.BusID, Date: k.date}
	}
	a.ID = s.id()
	s.assignments[a.ID] = *a
	s.slots[k] = a.ID

	initial.ID = s.id()
	initial.AssignmentID = a.ID
	s.changes = append(s.changes, initial)
	return nil
}

func (s *Store) GetAssignment(_ context.Context, id int64) (models.ScheduleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return models.ScheduleAssignment{}, domain.NotFoundError{Resource: "assignment", ID: id}
	}
	return a, nil
}

func (s *Store) ListAssignmentsByDate(_ context.Context, date time.Time) ([]models.ScheduleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := utils.FormatDate(date)
	out := []models.ScheduleAssignment{}
	for _, a := range s.assignments {
		if utils.FormatDate(a.Date) == day {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ApplyBusChange(_ context.Context, change models.BusAssignmentChange) (models.ScheduleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[change.AssignmentID]
	if !ok {
		return models.ScheduleAssignment{}, domain.NotFoundError{Resource: "assignment", ID: change.AssignmentID}
	}
	if change.OldBusID == nil || *change.OldBusID != a.BusID {
		return models.ScheduleAssignment{}, domain.ConflictError{Resource: "assignment", Msg: "bus changed concurrently"}
	}
	newKey := key(a.ScheduleID, change.NewBusID, a.Date)
	if _, taken := s.slots[newKey]; taken {
		return models.ScheduleAssignment{}, domain.DuplicateAssignmentError{ScheduleID: a.ScheduleID, BusID: change.NewBusID, Date: newKey.date}
	}
	if other, taken := s.tripSlots[newKey]; taken {
		return models.ScheduleAssignment{}, domain.DuplicateAssignmentError{ScheduleID: a.ScheduleID, BusID: change.NewBusID, Date: newKey.date,
			Err: fmt.Errorf("trip %d already occupies the slot", other)}
	}

	oldKey := key(a.ScheduleID, a.BusID, a.Date)
	change.ID = s.id()
	s.changes = append(s.changes, change)

	delete(s.slots, oldKey)
	a.BusID = change.NewBusID
	a.UpdatedAt = change.ChangedAt
	s.assignments[a.ID] = a
	s.slots[newKey] = a.ID

	for id, t := range s.trips {
		if t.AssignmentID != nil && *t.AssignmentID == a.ID {
			delete(s.tripSlots, oldKey)
			t.BusID = change.NewBusID
			t.UpdatedAt = change.ChangedAt
			s.trips[id] = t
			s.tripSlots[newKey] = id
		}
	}
	return a, nil
}

func (s *Store) UpdateAssignmentStatus(_ context.Context, id int64, from, to models.AssignmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return domain.NotFoundError{Resource: "assignment", ID: id}
	}
	if a.Status != from {
		return domain.InvalidTransitionError{Resource: "assignment", From: string(a.Status), To: string(to)}
	}
	a.Status = to
	a.UpdatedAt = utils.NowUTC()
	s.assignments[id] = a
	return nil
}

func (s *Store) DeleteAssignment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return domain.NotFoundError{Resource: "assignment", ID: id}
	}
	for tid, t := range s.trips {
		if t.AssignmentID == nil || *t.AssignmentID != id {
			continue
		}
		for _, tk := range s.tickets {
			if tk.TripID == tid && tk.Status.Sold() {
				return domain.ConflictError{Resource: "assignment", Msg: fmt.Sprintf("trip %d has sold tickets", tid)}
			}
		}
		if !t.Status.Terminal() {
			t.Status = models.TripCancelled
		}
		t.AssignmentID = nil
		t.UpdatedAt = utils.NowUTC()
		s.trips[tid] = t
	}
	delete(s.slots, key(a.ScheduleID, a.BusID, a.Date))
	delete(s.assignments, id)
	return nil
}

func (s *Store) ListChanges(_ context.Context, assignmentID int64) ([]models.BusAssignmentChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.BusAssignmentChange{}
	for _, c := range s.changes {
		if c.AssignmentID == assignmentID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

// Trips

func (s *Store) CreateTrip(_ context.Context, t *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(t.ScheduleID, t.BusID, t.Date)
	if existing, taken := s.tripSlots[k]; taken {
		return domain.AlreadyExistsError{Resource: "trip", ExistingID: existing}
	}
	t.ID = s.id()
	s.trips[t.ID] = *t
	s.tripSlots[k] = t.ID
	return nil
}

func (s *Store) GetTrip(_ context.Context, id int64) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return models.Trip{}, domain.NotFoundError{Resource: "trip", ID: id}
	}
	return t, nil
}

func (s *Store) FindTripByKey(_ context.Context, scheduleID, busID int64, date time.Time) (models.Trip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tripSlots[key(scheduleID, busID, date)]
	if !ok {
		return models.Trip{}, false, nil
	}
	return s.trips[id], true, nil
}

func (s *Store) FindTripByAssignment(_ context.Context, assignmentID int64) (models.Trip, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.AssignmentID != nil && *t.AssignmentID == assignmentID {
			return t, true, nil
		}
	}
	return models.Trip{}, false, nil
}

func (s *Store) ListTripsByDate(_ context.Context, date time.Time) ([]models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := utils.FormatDate(date)
	out := []models.Trip{}
	for _, t := range s.trips {
		if utils.FormatDate(t.Date) == day {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateTripStatus(_ context.Context, id int64, from, to models.TripStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return domain.NotFoundError{Resource: "trip", ID: id}
	}
	if t.Status != from {
		return domain.InvalidTransitionError{Resource: "trip", From: string(t.Status), To: string(to)}
	}
	t.Status = to
	t.UpdatedAt = utils.NowUTC()
	s.trips[id] = t
	return nil
}

func (s *Store) ReattachTrip(_ context.Context, tripID, assignmentID int64, at time.Time) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return models.Trip{}, domain.NotFoundError{Resource: "trip", ID: tripID}
	}
	if t.AssignmentID != nil || t.Status != models.TripCancelled {
		return models.Trip{}, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("trip %d is not detached", tripID)}
	}
	for _, other := range s.trips {
		if other.AssignmentID != nil && *other.AssignmentID == assignmentID {
			return models.Trip{}, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("assignment %d already has trip %d", assignmentID, other.ID)}
		}
	}
	live := 0
	for hk := range s.liveHolds {
		if hk.tripID == tripID {
			live++
		}
	}
	t.AssignmentID = &assignmentID
	t.Status = models.TripScheduled
	t.AvailableSeats = max(t.TotalSeats-live, 0)
	t.UpdatedAt = at
	s.trips[tripID] = t
	return t, nil
}

// Seat inventory

func (s *Store) Reserve(_ context.Context, tripID int64, seatID, token string, at time.Time) (models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[tripID]
	if !ok {
		return models.Reservation{}, domain.NotFoundError{Resource: "trip", ID: tripID}
	}
	if !t.Status.Bookable() {
		return models.Reservation{}, domain.TripNotBookableError{TripID: tripID, Status: string(t.Status)}
	}
	hk := holdKey{tripID: tripID, seatID: seatID}
	if _, held := s.liveHolds[hk]; held || t.AvailableSeats <= 0 {
		return models.Reservation{}, domain.SeatUnavailableError{TripID: tripID, SeatID: seatID}
	}
	r := models.Reservation{Token: token, TripID: tripID, SeatID: seatID, CreatedAt: at}
	s.holds[token] = r
	s.liveHolds[hk] = token
	t.AvailableSeats--
	t.UpdatedAt = at
	s.trips[tripID] = t
	return r, nil
}

func (s *Store) Release(_ context.Context, tripID int64, seatID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.liveHolds[holdKey{tripID: tripID, seatID: seatID}]
	if !ok {
		return false, nil
	}
	s.releaseLocked(token, at)
	return true, nil
}

// releaseLocked frees the hold behind token. Callers hold s.mu.
func (s *Store) releaseLocked(token string, at time.Time) bool {
	r, ok := s.holds[token]
	if !ok || !r.Active() {
		return false
	}
	r.ReleasedAt = &at
	s.holds[token] = r
	delete(s.liveHolds, holdKey{tripID: r.TripID, seatID: r.SeatID})
	if t, ok := s.trips[r.TripID]; ok {
		if t.AvailableSeats < t.TotalSeats {
			t.AvailableSeats++
		}
		t.UpdatedAt = at
		s.trips[r.TripID] = t
	}
	return true
}

func (s *Store) ListActiveReservations(_ context.Context, tripID int64) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Reservation{}
	for _, token := range s.liveHolds {
		if r := s.holds[token]; r.TripID == tripID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatID < out[j].SeatID })
	return out, nil
}

func (s *Store) ReleaseOrphans(_ context.Context, cutoff, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticketed := map[string]bool{}
	for _, tk := range s.tickets {
		ticketed[tk.ReservationToken] = true
	}
	n := 0
	for token, r := range s.holds {
		if r.Active() && r.CreatedAt.Before(cutoff) && !ticketed[token] {
			if s.releaseLocked(token, at) {
				n++
			}
		}
	}
	return n, nil
}

// Tickets

func (s *Store) CreateTicket(_ context.Context, t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailNextTicket; err != nil {
		s.FailNextTicket = nil
		return err
	}
	for _, other := range s.tickets {
		if other.TripID == t.TripID && other.SeatID == t.SeatID && other.Status.HoldsSeat() {
			return domain.SeatUnavailableError{TripID: t.TripID, SeatID: t.SeatID}
		}
		if other.Code == t.Code || other.QRCode == t.QRCode {
			return domain.AlreadyExistsError{Resource: "ticket", ExistingID: other.ID}
		}
	}
	t.ID = s.id()
	s.tickets[t.ID] = *t
	return nil
}

func (s *Store) GetTicket(_ context.Context, id int64) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, domain.NotFoundError{Resource: "ticket", ID: id}
	}
	return t, nil
}

func (s *Store) GetTicketByCode(_ context.Context, code string) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if t.Code == code {
			return t, nil
		}
	}
	return models.Ticket{}, domain.NotFoundError{Resource: "ticket", ID: code}
}

func (s *Store) ListTicketsByTrip(_ context.Context, tripID int64) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.TripID == tripID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) TransitionTicket(_ context.Context, id int64, from, to models.TicketStatus, release bool, at time.Time) (models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return models.Ticket{}, domain.NotFoundError{Resource: "ticket", ID: id}
	}
	if t.Status != from {
		return models.Ticket{}, domain.InvalidTransitionError{Resource: "ticket", From: string(t.Status), To: string(to)}
	}
	t.Status = to
	t.UpdatedAt = at
	s.tickets[id] = t
	if release {
		s.releaseLocked(t.ReservationToken, at)
	}
	return t, nil
}

func (s *Store) ListPendingBefore(_ context.Context, cutoff time.Time) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.Status == models.TicketPending && t.CreatedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListByTripAndStatus(_ context.Context, tripID int64, status models.TicketStatus) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Ticket{}
	for _, t := range s.tickets {
		if t.TripID == tripID && t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
