package models

import "strconv"

// Bus is what the bus registry reports about a vehicle.
type Bus struct {
	ID       int64    `json:"id"`
	Plate    string   `json:"plate"`
	Capacity int      `json:"capacity"`
	IsActive bool     `json:"isActive"`
	SeatMap  []string `json:"seatMap"`
}

// Seats returns the bus seat map. Registries that report only a capacity get
// numbered seats "1".."capacity".
func (b Bus) Seats() []string {
	if len(b.SeatMap) > 0 {
		return b.SeatMap
	}
	out := make([]string, 0, b.Capacity)
	for i := 1; i <= b.Capacity; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

func (b Bus) HasSeat(seatID string) bool {
	for _, s := range b.Seats() {
		if s == seatID {
			return true
		}
	}
	return false
}
