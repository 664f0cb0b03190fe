package services

import (
	"context"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

const maxReportSpan = 31

type SalesReportFilter struct {
	From    time.Time
	To      time.Time
	RouteID int64
}

// TripSales sums the tickets of one trip. Sold counts tickets that were paid
// for (paid, boarded, completed); refunded tickets are counted apart.
type TripSales struct {
	TripID        int64             `json:"tripId"`
	Date          string            `json:"date"`
	RouteID       int64             `json:"routeId"`
	RouteName     string            `json:"routeName"`
	ScheduleID    int64             `json:"scheduleId"`
	BusID         int64             `json:"busId"`
	DepartureTime time.Time         `json:"departureTime"`
	Status        models.TripStatus `json:"status"`
	TotalSeats    int               `json:"totalSeats"`
	Sold          int               `json:"sold"`
	Pending       int               `json:"pending"`
	Refunded      int               `json:"refunded"`
	Revenue       int64             `json:"revenue"`
	Itbms         int64             `json:"itbms"`
}

type ReportsService struct {
	Routes  RouteStore
	Trips   TripStore
	Tickets TicketStore
}

// SalesReport returns per-trip sales between From and To inclusive.
func (s ReportsService) SalesReport(ctx context.Context, f SalesReportFilter) ([]TripSales, error) {
	from, to := utils.DateOnly(f.From), utils.DateOnly(f.To)
	if to.Before(from) {
		return nil, domain.ValidationError{Field: "to", Msg: "must not be before from"}
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxReportSpan {
		return nil, domain.ValidationError{Field: "to", Msg: fmt.Sprintf("range is limited to %d days", maxReportSpan)}
	}

	routeNames := map[int64]string{}
	out := []TripSales{}
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		trips, err := s.Trips.ListTripsByDate(ctx, d)
		if err != nil {
			return nil, err
		}
		for _, t := range trips {
			if f.RouteID > 0 && t.RouteID != f.RouteID {
				continue
			}
			row := TripSales{
				TripID: t.ID, Date: utils.FormatDate(t.Date), RouteID: t.RouteID, ScheduleID: t.ScheduleID,
				BusID: t.BusID, DepartureTime: t.DepartureTime, Status: t.Status, TotalSeats: t.TotalSeats,
			}
			if name, ok := routeNames[t.RouteID]; ok {
				row.RouteName = name
			} else if rt, err := s.Routes.GetRoute(ctx, t.RouteID); err == nil {
				routeNames[t.RouteID] = rt.Name
				row.RouteName = rt.Name
			}

			tickets, err := s.Tickets.ListTicketsByTrip(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			for _, tk := range tickets {
				switch tk.Status {
				case models.TicketPaid, models.TicketBoarded, models.TicketCompleted:
					row.Sold++
					row.Revenue += tk.TotalPrice
					row.Itbms += tk.Itbms
				case models.TicketPending:
					row.Pending++
				case models.TicketRefunded:
					row.Refunded++
				}
			}
			out = append(out, row)
		}
	}
	return out, nil
}
