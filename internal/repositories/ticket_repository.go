package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	intconfig "busline/internal/config"
	intdb "busline/internal/db"
	"busline/internal/domain"
	"busline/internal/domain/models"
)

const ticketColumns = `id, trip_id, seat_code, reservation_token, passenger_name, COALESCE(passenger_document,''),
	COALESCE(passenger_phone,''), COALESCE(passenger_email,''), status, price_cents, itbms_cents, total_cents,
	ticket_code, qr_code, created_at, updated_at`

type TicketRepository struct {
	DB *sql.DB
}

func (r TicketRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanTicket(row interface{ Scan(...any) error }) (models.Ticket, error) {
	var (
		t      models.Ticket
		status string
	)
	err := row.Scan(&t.ID, &t.TripID, &t.SeatID, &t.ReservationToken, &t.Passenger.Name, &t.Passenger.DocumentID,
		&t.Passenger.Phone, &t.Passenger.Email, &status, &t.Price, &t.Itbms, &t.TotalPrice,
		&t.Code, &t.QRCode, &t.CreatedAt, &t.UpdatedAt)
	t.Status = models.TicketStatus(status)
	return t, err
}

func (r TicketRepository) CreateTicket(ctx context.Context, t *models.Ticket) error {
	res, err := r.db().ExecContext(ctx, `
		INSERT INTO tickets (trip_id, seat_code, reservation_token, passenger_name, passenger_document,
			passenger_phone, passenger_email, status, price_cents, itbms_cents, total_cents,
			ticket_code, qr_code, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.TripID, t.SeatID, t.ReservationToken, t.Passenger.Name, intdb.NullIfEmpty(t.Passenger.DocumentID),
		intdb.NullIfEmpty(t.Passenger.Phone), intdb.NullIfEmpty(t.Passenger.Email), string(t.Status),
		t.Price, t.Itbms, t.TotalPrice, t.Code, t.QRCode, t.CreatedAt, t.UpdatedAt)
	switch {
	case intdb.IsDuplicateKey(err, "uniq_ticket_active_seat"), intdb.IsDuplicateKey(err, "uniq_ticket_reservation"):
		return domain.SeatUnavailableError{TripID: t.TripID, SeatID: t.SeatID, Err: err}
	case intdb.IsDuplicateKey(err, ""):
		return domain.AlreadyExistsError{Resource: "ticket", Err: err}
	case err != nil:
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

func (r TicketRepository) getWith(ctx context.Context, q intdb.Execer, where string, arg any) (models.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, domain.NotFoundError{Resource: "ticket", ID: arg}
	}
	return t, err
}

func (r TicketRepository) GetTicket(ctx context.Context, id int64) (models.Ticket, error) {
	return r.getWith(ctx, r.db(), "id=?", id)
}

func (r TicketRepository) GetTicketByCode(ctx context.Context, code string) (models.Ticket, error) {
	return r.getWith(ctx, r.db(), "ticket_code=?", code)
}

func (r TicketRepository) list(ctx context.Context, where string, args ...any) ([]models.Ticket, error) {
	rows, err := r.db().QueryContext(ctx, "SELECT "+ticketColumns+" FROM tickets WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r TicketRepository) ListTicketsByTrip(ctx context.Context, tripID int64) ([]models.Ticket, error) {
	return r.list(ctx, "trip_id=?", tripID)
}

func (r TicketRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Ticket, error) {
	return r.list(ctx, "status=? AND created_at < ?", string(models.TicketPending), cutoff)
}

func (r TicketRepository) ListByTripAndStatus(ctx context.Context, tripID int64, status models.TicketStatus) ([]models.Ticket, error) {
	return r.list(ctx, "trip_id=? AND status=?", tripID, string(status))
}

// TransitionTicket compare-and-sets the status and, when release is set,
// frees the ticket's hold in the same transaction. The trip row is locked
// first, the same order Reserve uses.
func (r TicketRepository) TransitionTicket(ctx context.Context, id int64, from, to models.TicketStatus, release bool, at time.Time) (models.Ticket, error) {
	var out models.Ticket
	err := intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		var (
			tripID int64
			token  string
		)
		err := tx.QueryRowContext(ctx, "SELECT trip_id, reservation_token FROM tickets WHERE id=?", id).Scan(&tripID, &token)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundError{Resource: "ticket", ID: id}
		}
		if err != nil {
			return err
		}
		if _, _, err := lockTrip(ctx, tx, tripID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, "UPDATE tickets SET status=?, updated_at=? WHERE id=? AND status=?",
			string(to), at, id, string(from))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			cur, err := r.getWith(ctx, tx, "id=?", id)
			if err != nil {
				return err
			}
			return domain.InvalidTransitionError{Resource: "ticket", From: string(cur.Status), To: string(to)}
		}
		if release {
			if _, err := releaseHold(ctx, tx, tripID, at, "token=?", token); err != nil {
				return err
			}
		}
		out, err = r.getWith(ctx, tx, "id=?", id)
		return err
	})
	return out, err
}
