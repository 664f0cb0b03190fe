package repositories

import (
	"context"
	"database/sql"
	"time"

	intconfig "busline/internal/config"
	intdb "busline/internal/db"
	"busline/internal/domain"
	"busline/internal/domain/models"
)

// SeatRepository keeps one seat_reservations row per hold. The unique key on
// (trip_id, active_seat) admits a single live hold per seat, and the trip row
// lock keeps available_seats in step with it.
type SeatRepository struct {
	DB *sql.DB
}

func (r SeatRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func (r SeatRepository) Reserve(ctx context.Context, tripID int64, seatID, token string, at time.Time) (models.Reservation, error) {
	res := models.Reservation{Token: token, TripID: tripID, SeatID: seatID, CreatedAt: at}
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		status, available, err := lockTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if !status.Bookable() {
			return domain.TripNotBookableError{TripID: tripID, Status: string(status)}
		}
		if available <= 0 {
			return domain.SeatUnavailableError{TripID: tripID, SeatID: seatID}
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO seat_reservations (token, trip_id, seat_code, created_at) VALUES (?,?,?,?)",
			token, tripID, seatID, at)
		if intdb.IsDuplicateKey(err, "uniq_active_reservation") {
			return domain.SeatUnavailableError{TripID: tripID, SeatID: seatID, Err: err}
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE trips SET available_seats=available_seats-1, updated_at=? WHERE id=? AND available_seats>0",
			at, tripID)
		return err
	})
	if err != nil {
		return models.Reservation{}, err
	}
	return res, nil
}

func (r SeatRepository) Release(ctx context.Context, tripID int64, seatID string, at time.Time) (bool, error) {
	var released bool
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if _, _, err := lockTrip(ctx, tx, tripID); err != nil {
			return err
		}
		var err error
		released, err = releaseHold(ctx, tx, tripID, at, "seat_code=?", seatID)
		return err
	})
	return released, err
}

// releaseHold frees the live holds of tripID matching cond and returns their
// seats to the trip, capped at total_seats. The caller holds the trip lock.
func releaseHold(ctx context.Context, tx *sql.Tx, tripID int64, at time.Time, cond string, args ...any) (bool, error) {
	params := append([]any{at, tripID}, args...)
	res, err := tx.ExecContext(ctx,
		"UPDATE seat_reservations SET released_at=? WHERE trip_id=? AND released_at IS NULL AND "+cond, params...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE trips SET available_seats=LEAST(available_seats+?, total_seats), updated_at=? WHERE id=?",
		n, at, tripID)
	return err == nil, err
}

func (r SeatRepository) ListActiveReservations(ctx context.Context, tripID int64) ([]models.Reservation, error) {
	rows, err := r.db().QueryContext(ctx,
		"SELECT token, trip_id, seat_code, created_at FROM seat_reservations WHERE trip_id=? AND released_at IS NULL ORDER BY seat_code",
		tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Reservation{}
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.Token, &res.TripID, &res.SeatID, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ReleaseOrphans frees live holds older than cutoff that no ticket refers to.
// The ticket check is repeated under the trip lock so a ticket written in
// between keeps its hold.
func (r SeatRepository) ReleaseOrphans(ctx context.Context, cutoff, at time.Time) (int, error) {
	rows, err := r.db().QueryContext(ctx, `
		SELECT r.token, r.trip_id FROM seat_reservations r
		LEFT JOIN tickets t ON t.reservation_token = r.token
		WHERE r.released_at IS NULL AND r.created_at < ? AND t.id IS NULL`, cutoff)
	if err != nil {
		return 0, err
	}
	type orphan struct {
		token  string
		tripID int64
	}
	var orphans []orphan
	for rows.Next() {
		var o orphan
		if err := rows.Scan(&o.token, &o.tripID); err != nil {
			rows.Close()
			return 0, err
		}
		orphans = append(orphans, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, o := range orphans {
		var released bool
		err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
			if _, _, err := lockTrip(ctx, tx, o.tripID); err != nil {
				return err
			}
			var err error
			released, err = releaseHold(ctx, tx, o.tripID, at,
				"token=? AND NOT EXISTS (SELECT 1 FROM tickets WHERE reservation_token=?)", o.token, o.token)
			return err
		})
		if err != nil {
			return n, err
		}
		if released {
			n++
		}
	}
	return n, nil
}
