package models

import "math"

const DefaultExpressMultiplier = 1.0

// Schedule is an hour-of-day template for a route, not a calendar event.
type Schedule struct {
	ID                     int64   `json:"id"`
	RouteID                int64   `json:"routeId"`
	Hour                   int     `json:"hour"`
	IsExpress              bool    `json:"isExpress"`
	ExpressPriceMultiplier float64 `json:"expressPriceMultiplier"`
	IsActive               bool    `json:"isActive"`
}

// PriceFor returns the fare in cents a trip of this schedule sells at.
// Express schedules scale the base price, rounded half-up to the cent.
func (s Schedule) PriceFor(r Route) int64 {
	if !s.IsExpress {
		return r.BasePrice
	}
	m := s.ExpressPriceMultiplier
	if m <= 0 {
		m = DefaultExpressMultiplier
	}
	return int64(math.Floor(float64(r.BasePrice)*m + 0.5))
}

func ValidHour(h int) bool { return h >= 0 && h <= 23 }
