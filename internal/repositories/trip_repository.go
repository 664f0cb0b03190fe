package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intconfig "busline/internal/config"
	intdb "busline/internal/db"
	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

const tripColumns = `id, assignment_id, schedule_id, route_id, bus_id, service_date, departure_time,
	arrival_estimate, status, total_seats, available_seats, price_cents, created_at, updated_at`

type TripRepository struct {
	DB *sql.DB
}

func (r TripRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanTrip(row interface{ Scan(...any) error }) (models.Trip, error) {
	var (
		t          models.Trip
		assignment sql.NullInt64
		arrival    sql.NullTime
		status     string
	)
	err := row.Scan(&t.ID, &assignment, &t.ScheduleID, &t.RouteID, &t.BusID, &t.Date, &t.DepartureTime,
		&arrival, &status, &t.TotalSeats, &t.AvailableSeats, &t.Price, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return models.Trip{}, err
	}
	t.AssignmentID = intdb.Int64Ptr(assignment)
	t.ArrivalEstimate = intdb.TimePtr(arrival)
	t.Status = models.TripStatus(status)
	t.Date = utils.DateOnly(t.Date)
	t.DepartureTime = t.DepartureTime.UTC()
	return t, nil
}

// lockTrip takes the trip row lock every inventory-changing unit starts with,
// so concurrent units on one trip serialize in the same order.
func lockTrip(ctx context.Context, tx *sql.Tx, tripID int64) (models.TripStatus, int, error) {
	var (
		status    string
		available int
	)
	err := tx.QueryRowContext(ctx, "SELECT status, available_seats FROM trips WHERE id=? FOR UPDATE", tripID).
		Scan(&status, &available)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, domain.NotFoundError{Resource: "trip", ID: tripID}
	}
	return models.TripStatus(status), available, err
}

func (r TripRepository) CreateTrip(ctx context.Context, t *models.Trip) error {
	res, err := r.db().ExecContext(ctx, `
		INSERT INTO trips (assignment_id, schedule_id, route_id, bus_id, service_date, departure_time, arrival_estimate,
			status, total_seats, available_seats, price_cents, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		intdb.NullInt64(t.AssignmentID), t.ScheduleID, t.RouteID, t.BusID, utils.FormatDate(t.Date),
		t.DepartureTime.UTC(), intdb.NullTime(t.ArrivalEstimate), string(t.Status),
		t.TotalSeats, t.AvailableSeats, t.Price, t.CreatedAt, t.UpdatedAt)
	if intdb.IsDuplicateKey(err, "") {
		existing, ok, ferr := r.FindTripByKey(ctx, t.ScheduleID, t.BusID, t.Date)
		if ferr == nil && !ok && t.AssignmentID != nil {
			existing, ok, ferr = r.FindTripByAssignment(ctx, *t.AssignmentID)
		}
		ae := domain.AlreadyExistsError{Resource: "trip", Err: err}
		if ferr == nil && ok {
			ae.ExistingID = existing.ID
		}
		return ae
	}
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (r TripRepository) GetTrip(ctx context.Context, id int64) (models.Trip, error) {
	t, err := scanTrip(r.db().QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, domain.NotFoundError{Resource: "trip", ID: id}
	}
	return t, err
}

func (r TripRepository) findOne(ctx context.Context, where string, args ...any) (models.Trip, bool, error) {
	t, err := scanTrip(r.db().QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE "+where+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, false, nil
	}
	if err != nil {
		return models.Trip{}, false, err
	}
	return t, true, nil
}

func (r TripRepository) FindTripByKey(ctx context.Context, scheduleID, busID int64, date time.Time) (models.Trip, bool, error) {
	return r.findOne(ctx, "schedule_id=? AND bus_id=? AND service_date=?", scheduleID, busID, utils.FormatDate(date))
}

func (r TripRepository) FindTripByAssignment(ctx context.Context, assignmentID int64) (models.Trip, bool, error) {
	return r.findOne(ctx, "assignment_id=?", assignmentID)
}

func (r TripRepository) ListTripsByDate(ctx context.Context, date time.Time) ([]models.Trip, error) {
	rows, err := r.db().QueryContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE service_date=? ORDER BY departure_time, id",
		utils.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTripStatus is a compare-and-set on status.
func (r TripRepository) UpdateTripStatus(ctx context.Context, id int64, from, to models.TripStatus) error {
	res, err := r.db().ExecContext(ctx, "UPDATE trips SET status=?, updated_at=? WHERE id=? AND status=?",
		string(to), utils.NowUTC(), id, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	cur, err := r.GetTrip(ctx, id)
	if err != nil {
		return err
	}
	return domain.InvalidTransitionError{Resource: "trip", From: string(cur.Status), To: string(to)}
}

func (r TripRepository) ReattachTrip(ctx context.Context, tripID, assignmentID int64, at time.Time) (models.Trip, error) {
	var out models.Trip
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		status, _, err := lockTrip(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if status != models.TripCancelled {
			return domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("trip %d is %s", tripID, status)}
		}
		var live int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM seat_reservations WHERE trip_id=? AND released_at IS NULL", tripID).Scan(&live); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE trips SET assignment_id=?, status=?, available_seats=GREATEST(total_seats-?, 0), updated_at=?
			WHERE id=? AND assignment_id IS NULL`,
			assignmentID, string(models.TripScheduled), live, at, tripID)
		if intdb.IsDuplicateKey(err, "uniq_trip_assignment") {
			return domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("assignment %d already has a trip", assignmentID)}
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("trip %d is not detached", tripID)}
		}
		out, err = scanTrip(tx.QueryRowContext(ctx, "SELECT "+tripColumns+" FROM trips WHERE id=?", tripID))
		return err
	})
	return out, err
}
