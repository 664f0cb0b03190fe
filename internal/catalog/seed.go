// Package catalog imports the route, schedule and bus catalog from a YAML
// file. Imports are upserts keyed by id, so a file can be applied repeatedly.
package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"

	"gopkg.in/yaml.v3"
)

// Writer is implemented by the MySQL repositories and the memory store.
type Writer interface {
	UpsertRoute(ctx context.Context, r models.Route) error
	UpsertSchedule(ctx context.Context, s models.Schedule) error
	UpsertBus(ctx context.Context, b models.Bus) error
}

type File struct {
	Routes []RouteEntry `yaml:"routes"`
	Buses  []BusEntry   `yaml:"buses"`
}

type RouteEntry struct {
	ID              int64           `yaml:"id"`
	Name            string          `yaml:"name"`
	Origin          string          `yaml:"origin"`
	Destination     string          `yaml:"destination"`
	BasePrice       string          `yaml:"basePrice"`
	DurationMinutes int             `yaml:"durationMinutes"`
	Active          *bool           `yaml:"active"`
	Schedules       []ScheduleEntry `yaml:"schedules"`
}

type ScheduleEntry struct {
	ID         int64   `yaml:"id"`
	Hour       int     `yaml:"hour"`
	Express    bool    `yaml:"express"`
	Multiplier float64 `yaml:"multiplier"`
	Active     *bool   `yaml:"active"`
}

// BusEntry takes either an explicit seat list or a row layout: rows A, B, ...
// with seatsPerRow numbered seats each (A1..A4, B1..B4).
type BusEntry struct {
	ID          int64    `yaml:"id"`
	Plate       string   `yaml:"plate"`
	Capacity    int      `yaml:"capacity"`
	Active      *bool    `yaml:"active"`
	Seats       []string `yaml:"seats"`
	Rows        int      `yaml:"rows"`
	SeatsPerRow int      `yaml:"seatsPerRow"`
}

type Result struct {
	Routes    int
	Schedules int
	Buses     int
}

func orTrue(b *bool) bool { return b == nil || *b }

func Parse(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return File{}, domain.ValidationError{Field: "catalog", Msg: "invalid YAML", Err: err}
	}
	return f, nil
}

func (e RouteEntry) model() (models.Route, error) {
	if e.ID <= 0 {
		return models.Route{}, domain.ValidationError{Field: "routes.id", Msg: "id is required"}
	}
	if e.Name == "" {
		e.Name = utils.NormalizeSpace(e.Origin + " - " + e.Destination)
	}
	price, err := utils.ParseMoney(e.BasePrice)
	if err != nil {
		return models.Route{}, domain.ValidationError{Field: "routes.basePrice", Msg: fmt.Sprintf("route %d: %v", e.ID, err)}
	}
	if e.DurationMinutes < 0 {
		return models.Route{}, domain.ValidationError{Field: "routes.durationMinutes", Msg: fmt.Sprintf("route %d: negative duration", e.ID)}
	}
	return models.Route{ID: e.ID, Name: e.Name, Origin: e.Origin, Destination: e.Destination,
		BasePrice: price, DurationMinutes: e.DurationMinutes, IsActive: orTrue(e.Active)}, nil
}

func (e ScheduleEntry) model(routeID int64) (models.Schedule, error) {
	if e.ID <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "schedules.id", Msg: "id is required"}
	}
	if !models.ValidHour(e.Hour) {
		return models.Schedule{}, domain.ValidationError{Field: "schedules.hour", Msg: fmt.Sprintf("schedule %d: hour %d out of range", e.ID, e.Hour)}
	}
	m := e.Multiplier
	if m == 0 {
		m = models.DefaultExpressMultiplier
	}
	if m < 0 {
		return models.Schedule{}, domain.ValidationError{Field: "schedules.multiplier", Msg: fmt.Sprintf("schedule %d: multiplier must be positive", e.ID)}
	}
	return models.Schedule{ID: e.ID, RouteID: routeID, Hour: e.Hour, IsExpress: e.Express,
		ExpressPriceMultiplier: m, IsActive: orTrue(e.Active)}, nil
}

func (e BusEntry) model() (models.Bus, error) {
	if e.ID <= 0 {
		return models.Bus{}, domain.ValidationError{Field: "buses.id", Msg: "id is required"}
	}
	seats := make([]string, 0, len(e.Seats))
	for _, s := range e.Seats {
		if s = utils.NormalizeSeat(s); s != "" {
			seats = append(seats, s)
		}
	}
	if len(seats) == 0 && e.Rows > 0 && e.SeatsPerRow > 0 {
		if e.Rows > 26 {
			return models.Bus{}, domain.ValidationError{Field: "buses.rows", Msg: fmt.Sprintf("bus %d: at most 26 rows", e.ID)}
		}
		for r := 0; r < e.Rows; r++ {
			for c := 1; c <= e.SeatsPerRow; c++ {
				seats = append(seats, string(rune('A'+r))+strconv.Itoa(c))
			}
		}
	}
	capacity := e.Capacity
	if capacity == 0 {
		capacity = len(seats)
	}
	if capacity <= 0 {
		return models.Bus{}, domain.ValidationError{Field: "buses.capacity", Msg: fmt.Sprintf("bus %d: capacity is required", e.ID)}
	}
	seen := map[string]bool{}
	for _, s := range seats {
		if seen[s] {
			return models.Bus{}, domain.ValidationError{Field: "buses.seats", Msg: fmt.Sprintf("bus %d: seat %s listed twice", e.ID, s)}
		}
		seen[s] = true
	}
	return models.Bus{ID: e.ID, Plate: e.Plate, Capacity: capacity, IsActive: orTrue(e.Active), SeatMap: seats}, nil
}

// Import validates the whole file before writing anything.
func Import(ctx context.Context, w Writer, f File) (Result, error) {
	var (
		routes    []models.Route
		schedules []models.Schedule
		buses     []models.Bus
	)
	for _, re := range f.Routes {
		rt, err := re.model()
		if err != nil {
			return Result{}, err
		}
		routes = append(routes, rt)
		for _, se := range re.Schedules {
			sc, err := se.model(rt.ID)
			if err != nil {
				return Result{}, err
			}
			schedules = append(schedules, sc)
		}
	}
	for _, be := range f.Buses {
		b, err := be.model()
		if err != nil {
			return Result{}, err
		}
		buses = append(buses, b)
	}

	var res Result
	for _, rt := range routes {
		if err := w.UpsertRoute(ctx, rt); err != nil {
			return res, fmt.Errorf("route %d: %w", rt.ID, err)
		}
		res.Routes++
	}
	for _, sc := range schedules {
		if err := w.UpsertSchedule(ctx, sc); err != nil {
			return res, fmt.Errorf("schedule %d: %w", sc.ID, err)
		}
		res.Schedules++
	}
	for _, b := range buses {
		if err := w.UpsertBus(ctx, b); err != nil {
			return res, fmt.Errorf("bus %d: %w", b.ID, err)
		}
		res.Buses++
	}
	utils.LogEvent("", "catalog", "import", fmt.Sprintf("routes=%d schedules=%d buses=%d", res.Routes, res.Schedules, res.Buses))
	return res, nil
}

// ImportFile parses path and imports it.
func ImportFile(ctx context.Context, w Writer, path string) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer fh.Close()
	f, err := Parse(fh)
	if err != nil {
		return Result{}, err
	}
	return Import(ctx, w, f)
}
