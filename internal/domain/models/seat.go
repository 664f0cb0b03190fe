package models

import "time"

// Reservation is the inventory hold behind a ticket. Token is what
// SeatInventory.Reserve hands back.
type Reservation struct {
	Token      string     `json:"token"`
	TripID     int64      `json:"tripId"`
	SeatID     string     `json:"seatId"`
	CreatedAt  time.Time  `json:"createdAt"`
	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
}

func (r Reservation) Active() bool { return r.ReleasedAt == nil }

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatSold      SeatState = "sold"
)

type SeatMapEntry struct {
	SeatID string    `json:"seatId"`
	State  SeatState `json:"state"`
}

// SeatEvent is published to seat-selection clients after inventory changes.
type SeatEvent struct {
	TripID    int64     `json:"tripId"`
	SeatID    string    `json:"seatId"`
	State     SeatState `json:"state"`
	Available int       `json:"available"`
}
