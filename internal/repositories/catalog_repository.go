package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	intconfig "busline/internal/config"
	intdb "busline/internal/db"
	"busline/internal/domain"
	"busline/internal/domain/models"
)

const routeColumns = "id, name, origin, destination, base_price_cents, duration_minutes, is_active"

type RouteRepository struct {
	DB *sql.DB
}

func (r RouteRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanRoute(row interface{ Scan(...any) error }) (models.Route, error) {
	var rt models.Route
	err := row.Scan(&rt.ID, &rt.Name, &rt.Origin, &rt.Destination, &rt.BasePrice, &rt.DurationMinutes, &rt.IsActive)
	return rt, err
}

func (r RouteRepository) GetRoute(ctx context.Context, id int64) (models.Route, error) {
	rt, err := scanRoute(r.db().QueryRowContext(ctx, "SELECT "+routeColumns+" FROM routes WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Route{}, domain.NotFoundError{Resource: "route", ID: id}
	}
	return rt, err
}

func (r RouteRepository) ListRoutes(ctx context.Context, activeOnly bool) ([]models.Route, error) {
	q := "SELECT " + routeColumns + " FROM routes"
	if activeOnly {
		q += " WHERE is_active=1"
	}
	rows, err := r.db().QueryContext(ctx, q+" ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Route{}
	for rows.Next() {
		rt, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// UpsertRoute writes a route with a caller-chosen id (catalog seeding).
func (r RouteRepository) UpsertRoute(ctx context.Context, rt models.Route) error {
	_, err := r.db().ExecContext(ctx, `
		INSERT INTO routes (id, name, origin, destination, base_price_cents, duration_minutes, is_active)
		VALUES (?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE name=VALUES(name), origin=VALUES(origin), destination=VALUES(destination),
			base_price_cents=VALUES(base_price_cents), duration_minutes=VALUES(duration_minutes),
			is_active=VALUES(is_active), updated_at=CURRENT_TIMESTAMP(6)`,
		rt.ID, rt.Name, rt.Origin, rt.Destination, rt.BasePrice, rt.DurationMinutes, rt.IsActive)
	return err
}

const scheduleColumns = "id, route_id, hour, is_express, express_multiplier, is_active"

type ScheduleRepository struct {
	DB *sql.DB
}

func (r ScheduleRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func scanSchedule(row interface{ Scan(...any) error }) (models.Schedule, error) {
	var s models.Schedule
	err := row.Scan(&s.ID, &s.RouteID, &s.Hour, &s.IsExpress, &s.ExpressPriceMultiplier, &s.IsActive)
	return s, err
}

func (r ScheduleRepository) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	s, err := scanSchedule(r.db().QueryRowContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule", ID: id}
	}
	return s, err
}

func (r ScheduleRepository) list(ctx context.Context, where string, args ...any) ([]models.Schedule, error) {
	rows, err := r.db().QueryContext(ctx, "SELECT "+scheduleColumns+" FROM schedules WHERE "+where+" ORDER BY hour, id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Schedule{}
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r ScheduleRepository) ListSchedulesByRoute(ctx context.Context, routeID int64) ([]models.Schedule, error) {
	return r.list(ctx, "route_id=?", routeID)
}

func (r ScheduleRepository) ListActiveSchedules(ctx context.Context) ([]models.Schedule, error) {
	return r.list(ctx, "is_active=1")
}

func (r ScheduleRepository) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	res, err := r.db().ExecContext(ctx,
		"INSERT INTO schedules (route_id, hour, is_express, express_multiplier, is_active) VALUES (?,?,?,?,?)",
		s.RouteID, s.Hour, s.IsExpress, s.ExpressPriceMultiplier, s.IsActive)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

func (r ScheduleRepository) UpsertSchedule(ctx context.Context, s models.Schedule) error {
	_, err := r.db().ExecContext(ctx, `
		INSERT INTO schedules (id, route_id, hour, is_express, express_multiplier, is_active)
		VALUES (?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE route_id=VALUES(route_id), hour=VALUES(hour), is_express=VALUES(is_express),
			express_multiplier=VALUES(express_multiplier), is_active=VALUES(is_active)`,
		s.ID, s.RouteID, s.Hour, s.IsExpress, s.ExpressPriceMultiplier, s.IsActive)
	return err
}

// BusRepository is the local mirror of the vehicle registry.
type BusRepository struct {
	DB *sql.DB
}

func (r BusRepository) db() *sql.DB {
	if r.DB != nil {
		return r.DB
	}
	return intconfig.DB
}

func (r BusRepository) GetBus(ctx context.Context, id int64) (models.Bus, error) {
	var b models.Bus
	err := r.db().QueryRowContext(ctx, "SELECT id, plate, capacity, is_active FROM buses WHERE id=?", id).
		Scan(&b.ID, &b.Plate, &b.Capacity, &b.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Bus{}, domain.NotFoundError{Resource: "bus", ID: id}
	}
	if err != nil {
		return models.Bus{}, err
	}

	rows, err := r.db().QueryContext(ctx, "SELECT seat_code FROM bus_seats WHERE bus_id=? ORDER BY seat_code", id)
	if err != nil {
		return models.Bus{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var seat string
		if err := rows.Scan(&seat); err != nil {
			return models.Bus{}, err
		}
		b.SeatMap = append(b.SeatMap, seat)
	}
	return b, rows.Err()
}

// UpsertBus writes a bus and replaces its seat map.
func (r BusRepository) UpsertBus(ctx context.Context, b models.Bus) error {
	if len(b.SeatMap) > 0 && len(b.SeatMap) != b.Capacity {
		return domain.ValidationError{Field: "seatMap", Msg: fmt.Sprintf("bus %s has %d seats for capacity %d", b.Plate, len(b.SeatMap), b.Capacity)}
	}
	return intdb.WithTx(ctx, r.db(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO buses (id, plate, capacity, is_active) VALUES (?,?,?,?)
			ON DUPLICATE KEY UPDATE plate=VALUES(plate), capacity=VALUES(capacity), is_active=VALUES(is_active)`,
			b.ID, b.Plate, b.Capacity, b.IsActive); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM bus_seats WHERE bus_id=?", b.ID); err != nil {
			return err
		}
		if len(b.SeatMap) == 0 {
			return nil
		}
		args := make([]any, 0, len(b.SeatMap)*2)
		values := make([]string, 0, len(b.SeatMap))
		for _, seat := range b.SeatMap {
			values = append(values, "(?,?)")
			args = append(args, b.ID, seat)
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO bus_seats (bus_id, seat_code) VALUES "+strings.Join(values, ","), args...)
		return err
	})
}
