package services

import (
	"context"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/google/uuid"
)

// SeatInventory guards per-seat occupancy of a trip. Reserve and Release
// delegate the check-and-count step to SeatStore, which performs it as one
// atomic unit.
type SeatInventory struct {
	Trips     TripStore
	Buses     BusRegistry
	Seats     SeatStore
	Events    SeatEvents
	Now       func() time.Time
	RequestID string
}

func (s SeatInventory) events() SeatEvents {
	if s.Events != nil {
		return s.Events
	}
	return NoopEvents
}

// Reserve holds seatID on tripID and returns the reservation whose Token the
// ticket is bound to.
func (s SeatInventory) Reserve(ctx context.Context, tripID int64, seatID string) (models.Reservation, error) {
	seatID = utils.NormalizeSeat(seatID)
	if seatID == "" {
		return models.Reservation{}, domain.ValidationError{Field: "seat_id", Msg: "required"}
	}
	trip, err := s.Trips.GetTrip(ctx, tripID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !trip.Status.Bookable() {
		return models.Reservation{}, domain.TripNotBookableError{TripID: trip.ID, Status: string(trip.Status)}
	}
	bus, err := s.Buses.GetBus(ctx, trip.BusID)
	if err != nil {
		return models.Reservation{}, err
	}
	if !bus.HasSeat(seatID) {
		return models.Reservation{}, domain.ValidationError{Field: "seat_id",
			Msg: fmt.Sprintf("seat %s is not on bus %d", seatID, bus.ID)}
	}

	res, err := s.Seats.Reserve(ctx, trip.ID, seatID, uuid.NewString(), clock(s.Now))
	if err != nil {
		if domain.IsSeatUnavailable(err) {
			utils.LogEvent(requestID(ctx, s.RequestID), "inventory", "reserve_conflict",
				fmt.Sprintf("trip_id=%d seat=%s", trip.ID, seatID))
		}
		return models.Reservation{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "inventory", "reserve", fmt.Sprintf("trip_id=%d seat=%s", trip.ID, seatID))
	s.publish(ctx, trip.ID, seatID, models.SeatSold)
	return res, nil
}

// Release gives a held seat back. Releasing a free seat is a no-op.
func (s SeatInventory) Release(ctx context.Context, tripID int64, seatID string) error {
	seatID = utils.NormalizeSeat(seatID)
	if seatID == "" {
		return domain.ValidationError{Field: "seat_id", Msg: "required"}
	}
	released, err := s.Seats.Release(ctx, tripID, seatID, clock(s.Now))
	if err != nil {
		return err
	}
	if released {
		utils.LogEvent(requestID(ctx, s.RequestID), "inventory", "release", fmt.Sprintf("trip_id=%d seat=%s", tripID, seatID))
		s.publish(ctx, tripID, seatID, models.SeatAvailable)
	}
	return nil
}

// SeatMap lists every seat of the trip's current bus with its state.
func (s SeatInventory) SeatMap(ctx context.Context, tripID int64) ([]models.SeatMapEntry, error) {
	trip, err := s.Trips.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	bus, err := s.Buses.GetBus(ctx, trip.BusID)
	if err != nil {
		return nil, err
	}
	holds, err := s.Seats.ListActiveReservations(ctx, trip.ID)
	if err != nil {
		return nil, err
	}
	sold := make(map[string]bool, len(holds))
	for _, h := range holds {
		sold[h.SeatID] = true
	}
	seats := bus.Seats()
	out := make([]models.SeatMapEntry, 0, len(seats))
	for _, id := range seats {
		state := models.SeatAvailable
		if sold[id] {
			state = models.SeatSold
		}
		out = append(out, models.SeatMapEntry{SeatID: id, State: state})
	}
	return out, nil
}

// notifyReleased publishes a release performed by another unit, such as a
// ticket transition.
func (s SeatInventory) notifyReleased(ctx context.Context, tripID int64, seatID string) {
	s.publish(ctx, tripID, seatID, models.SeatAvailable)
}

func (s SeatInventory) publish(ctx context.Context, tripID int64, seatID string, state models.SeatState) {
	ev := models.SeatEvent{TripID: tripID, SeatID: seatID, State: state, Available: -1}
	if trip, err := s.Trips.GetTrip(ctx, tripID); err == nil {
		ev.Available = trip.AvailableSeats
	}
	s.events().SeatChanged(ctx, ev)
}
