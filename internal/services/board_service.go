package services

import (
	"context"
	"time"

	"busline/internal/domain/models"
	"busline/internal/utils"
)

// BoardService answers "what is sellable on this date" for checkout screens.
type BoardService struct {
	Routes      RouteStore
	Schedules   ScheduleStore
	Assignments AssignmentStore
	Trips       TripStore
}

type BoardTrip struct {
	ID             int64             `json:"id"`
	BusID          int64             `json:"busId"`
	Status         models.TripStatus `json:"status"`
	DepartureTime  time.Time         `json:"departureTime"`
	AvailableSeats int               `json:"availableSeats"`
	TotalSeats     int               `json:"totalSeats"`
	Price          int64             `json:"price"`
	Sellable       bool              `json:"sellable"`
}

type BoardAssignment struct {
	models.ScheduleAssignment
	Trip *BoardTrip `json:"trip"`
}

type BoardEntry struct {
	Schedule    models.Schedule   `json:"schedule"`
	Route       models.Route      `json:"route"`
	Price       int64             `json:"price"`
	Assignments []BoardAssignment `json:"assignments"`
}

// Board lists schedules of the date with their assignments and derived trip
// state. routeID 0 means every active schedule.
func (s BoardService) Board(ctx context.Context, date time.Time, routeID int64) ([]BoardEntry, error) {
	date = utils.DateOnly(date)

	var schedules []models.Schedule
	var err error
	if routeID > 0 {
		if _, err = s.Routes.GetRoute(ctx, routeID); err != nil {
			return nil, err
		}
		schedules, err = s.Schedules.ListSchedulesByRoute(ctx, routeID)
	} else {
		schedules, err = s.Schedules.ListActiveSchedules(ctx)
	}
	if err != nil {
		return nil, err
	}

	assignments, err := s.Assignments.ListAssignmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	bySchedule := map[int64][]models.ScheduleAssignment{}
	for _, a := range assignments {
		bySchedule[a.ScheduleID] = append(bySchedule[a.ScheduleID], a)
	}

	trips, err := s.Trips.ListTripsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	byAssignment := map[int64]models.Trip{}
	for _, t := range trips {
		if t.AssignmentID != nil {
			byAssignment[*t.AssignmentID] = t
		}
	}

	routes := map[int64]models.Route{}
	out := make([]BoardEntry, 0, len(schedules))
	for _, sc := range schedules {
		r, ok := routes[sc.RouteID]
		if !ok {
			if r, err = s.Routes.GetRoute(ctx, sc.RouteID); err != nil {
				return nil, err
			}
			routes[r.ID] = r
		}
		entry := BoardEntry{Schedule: sc, Route: r, Price: sc.PriceFor(r), Assignments: []BoardAssignment{}}
		for _, a := range bySchedule[sc.ID] {
			ba := BoardAssignment{ScheduleAssignment: a}
			if t, ok := byAssignment[a.ID]; ok {
				ba.Trip = &BoardTrip{
					ID:             t.ID,
					BusID:          t.BusID,
					Status:         t.Status,
					DepartureTime:  t.DepartureTime,
					AvailableSeats: t.AvailableSeats,
					TotalSeats:     t.TotalSeats,
					Price:          t.Price,
					Sellable:       t.Status.Bookable() && t.AvailableSeats > 0,
				}
			}
			entry.Assignments = append(entry.Assignments, ba)
		}
		out = append(out, entry)
	}
	return out, nil
}
