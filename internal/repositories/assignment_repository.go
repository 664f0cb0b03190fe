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

const assignmentColumns = "id, schedule_id, bus_id, service_date, status, driver_id, assistant_id, created_at, updated_at"

type AssignmentRepository struct {
	DB *sql.DB
}

func (r AssignmentRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanAssignment(row interface{ Scan(...any) error }) (models.ScheduleAssignment, error) {
	var (
		a                 models.ScheduleAssignment
		status            string
		driver, assistant sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.ScheduleID, &a.BusID, &a.Date, &status, &driver, &assistant, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.ScheduleAssignment{}, err
	}
	a.Status = models.AssignmentStatus(status)
	a.DriverID = intdb.Int64Ptr(driver)
	a.AssistantID = intdb.Int64Ptr(assistant)
	a.Date = utils.DateOnly(a.Date)
	return a, nil
}

func insertChange(ctx context.Context, tx *sql.Tx, c models.BusAssignmentChange) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bus_assignment_changes (assignment_id, old_bus_id, new_bus_id, reason, changed_by, changed_at)
		VALUES (?,?,?,?,?,?)`,
		c.AssignmentID, intdb.NullInt64(c.OldBusID), c.NewBusID, c.Reason, c.ChangedBy, c.ChangedAt)
	return err
}

func duplicateSlot(a models.ScheduleAssignment, busID int64, err error) error {
	return domain.DuplicateAssignmentError{ScheduleID: a.ScheduleID, BusID: busID, Date: utils.FormatDate(a.Date), Err: err}
}

func (r AssignmentRepository) CreateAssignment(ctx context.Context, a *models.ScheduleAssignment, initial models.BusAssignmentChange) error {
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_assignments (schedule_id, bus_id, service_date, status, driver_id, assistant_id, created_at, updated_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			a.ScheduleID, a.BusID, utils.FormatDate(a.Date), string(a.Status),
			intdb.NullInt64(a.DriverID), intdb.NullInt64(a.AssistantID), a.CreatedAt, a.UpdatedAt)
		if intdb.IsDuplicateKey(err, "uniq_assignment_slot") {
			return duplicateSlot(*a, a.BusID, err)
		}
		if err != nil {
			return err
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		initial.AssignmentID = a.ID
		return insertChange(ctx, tx, initial)
	})
}

func (r AssignmentRepository) getWith(ctx context.Context, q intdb.Execer, id int64, lock bool) (models.ScheduleAssignment, error) {
	query := "SELECT " + assignmentColumns + " FROM schedule_assignments WHERE id=?"
	if lock {
		query += " FOR UPDATE"
	}
	a, err := scanAssignment(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScheduleAssignment{}, domain.NotFoundError{Resource: "assignment", ID: id}
	}
	return a, err
}

func (r AssignmentRepository) GetAssignment(ctx context.Context, id int64) (models.ScheduleAssignment, error) {
	return r.getWith(ctx, r.db(), id, false)
}

func (r AssignmentRepository) ListAssignmentsByDate(ctx context.Context, date time.Time) ([]models.ScheduleAssignment, error) {
	rows, err := r.db().QueryContext(ctx,
		"SELECT "+assignmentColumns+" FROM schedule_assignments WHERE service_date=? ORDER BY schedule_id, id",
		utils.FormatDate(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ScheduleAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// lockAssignmentTrip locks the trip generated from assignmentID, if any. It
// runs before the assignment row lock to keep trip-first ordering.
func lockAssignmentTrip(ctx context.Context, tx *sql.Tx, assignmentID int64) (int64, bool, error) {
	var tripID int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM trips WHERE assignment_id=? FOR UPDATE", assignmentID).Scan(&tripID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	return tripID, err == nil, err
}

func (r AssignmentRepository) ApplyBusChange(ctx context.Context, change models.BusAssignmentChange) (models.ScheduleAssignment, error) {
	var out models.ScheduleAssignment
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if _, _, err := lockAssignmentTrip(ctx, tx, change.AssignmentID); err != nil {
			return err
		}
		a, err := r.getWith(ctx, tx, change.AssignmentID, true)
		if err != nil {
			return err
		}
		if change.OldBusID == nil || *change.OldBusID != a.BusID {
			return domain.ConflictError{Resource: "assignment", Msg: "bus changed concurrently"}
		}

		if err := insertChange(ctx, tx, change); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE schedule_assignments SET bus_id=?, updated_at=? WHERE id=?",
			change.NewBusID, change.ChangedAt, a.ID)
		if intdb.IsDuplicateKey(err, "uniq_assignment_slot") {
			return duplicateSlot(a, change.NewBusID, err)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE trips SET bus_id=?, updated_at=? WHERE assignment_id=?",
			change.NewBusID, change.ChangedAt, a.ID)
		if intdb.IsDuplicateKey(err, "uniq_trip_slot") {
			return duplicateSlot(a, change.NewBusID, fmt.Errorf("a trip already occupies the slot: %w", err))
		}
		if err != nil {
			return err
		}
		out, err = r.getWith(ctx, tx, a.ID, false)
		return err
	})
	return out, err
}

func (r AssignmentRepository) UpdateAssignmentStatus(ctx context.Context, id int64, from, to models.AssignmentStatus) error {
	res, err := r.db().ExecContext(ctx, "UPDATE schedule_assignments SET status=?, updated_at=? WHERE id=? AND status=?",
		string(to), utils.NowUTC(), id, string(from))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	cur, err := r.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	return domain.InvalidTransitionError{Resource: "assignment", From: string(cur.Status), To: string(to)}
}

func (r AssignmentRepository) DeleteAssignment(ctx context.Context, id int64) error {
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		tripID, hasTrip, err := lockAssignmentTrip(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := r.getWith(ctx, tx, id, true); err != nil {
			return err
		}
		if hasTrip {
			sold := make([]any, 0, len(models.SoldTicketStatuses)+1)
			sold = append(sold, tripID)
			for _, s := range models.SoldTicketStatuses {
				sold = append(sold, string(s))
			}
			var n int
			err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM tickets WHERE trip_id=? AND status IN ("+intdb.Placeholders(len(models.SoldTicketStatuses))+")",
				sold...).Scan(&n)
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.ConflictError{Resource: "assignment", Msg: fmt.Sprintf("trip %d has %d sold tickets", tripID, n)}
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE trips SET status=IF(status IN ('completed','cancelled'), status, 'cancelled'),
					assignment_id=NULL, updated_at=? WHERE id=?`, utils.NowUTC(), tripID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM schedule_assignments WHERE id=?", id)
		return err
	})
}

func (r AssignmentRepository) ListChanges(ctx context.Context, assignmentID int64) ([]models.BusAssignmentChange, error) {
	rows, err := r.db().QueryContext(ctx, `
		SELECT id, assignment_id, old_bus_id, new_bus_id, reason, changed_by, changed_at
		FROM bus_assignment_changes WHERE assignment_id=? ORDER BY changed_at, id`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.BusAssignmentChange{}
	for rows.Next() {
		var (
			c   models.BusAssignmentChange
			old sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.AssignmentID, &old, &c.NewBusID, &c.Reason, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.OldBusID = intdb.Int64Ptr(old)
		out = append(out, c)
	}
	return out, rows.Err()
}
