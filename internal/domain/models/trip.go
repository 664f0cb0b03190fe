package models

import "time"

type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripBoarding  TripStatus = "boarding"
	TripInTransit TripStatus = "in_transit"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
	TripDelayed   TripStatus = "delayed"
)

var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled: {TripBoarding, TripDelayed, TripCancelled},
	TripDelayed:   {TripScheduled, TripBoarding, TripCancelled},
	TripBoarding:  {TripInTransit, TripDelayed, TripCancelled},
	TripInTransit: {TripCompleted, TripDelayed},
}

// BookableTripStatuses are the statuses in which seats may be sold.
var BookableTripStatuses = []TripStatus{TripScheduled, TripBoarding}

func (s TripStatus) Valid() bool {
	switch s {
	case TripScheduled, TripBoarding, TripInTransit, TripCompleted, TripCancelled, TripDelayed:
		return true
	}
	return false
}

func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

func (s TripStatus) Bookable() bool {
	for _, b := range BookableTripStatuses {
		if s == b {
			return true
		}
	}
	return false
}

func (s TripStatus) CanTransition(to TripStatus) bool {
	for _, next := range tripTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Trip is a sellable schedule+bus+date instance. TotalSeats and Price are
// frozen at generation time.
type Trip struct {
	ID              int64      `json:"id"`
	AssignmentID    *int64     `json:"assignmentId,omitempty"`
	ScheduleID      int64      `json:"scheduleId"`
	RouteID         int64      `json:"routeId"`
	BusID           int64      `json:"busId"`
	Date            time.Time  `json:"date"`
	DepartureTime   time.Time  `json:"departureTime"`
	ArrivalEstimate *time.Time `json:"arrivalEstimate,omitempty"`
	Status          TripStatus `json:"status"`
	TotalSeats      int        `json:"totalSeats"`
	AvailableSeats  int        `json:"availableSeats"`
	Price           int64      `json:"price"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type SkipReason string

const (
	SkipAlreadyExists    SkipReason = "AlreadyExists"
	SkipBusInactive      SkipReason = "BusInactive"
	SkipNoBusAssigned    SkipReason = "NoBusAssigned"
	SkipScheduleInactive SkipReason = "ScheduleInactive"
	SkipRouteInactive    SkipReason = "RouteInactive"
	SkipCancelled        SkipReason = "AssignmentCancelled"
)

// Skip explains why generation did not create a trip for one slot.
type Skip struct {
	ScheduleID   int64      `json:"scheduleId"`
	AssignmentID int64      `json:"assignmentId,omitempty"`
	BusID        int64      `json:"busId,omitempty"`
	TripID       int64      `json:"tripId,omitempty"`
	Reason       SkipReason `json:"reason"`
	Detail       string     `json:"detail,omitempty"`
}

// GenerationSummary is what an operator sees after a generation run.
type GenerationSummary struct {
	Date    string `json:"date"`
	Created []Trip `json:"created"`
	Skipped []Skip `json:"skipped"`
}

// Counts returns skipped totals per reason.
func (g GenerationSummary) Counts() map[SkipReason]int {
	out := map[SkipReason]int{}
	for _, s := range g.Skipped {
		out[s.Reason]++
	}
	return out
}
