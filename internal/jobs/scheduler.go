package jobs

import (
	"context"
	"fmt"
	"time"

	"busline/internal/domain/models"
	"busline/internal/utils"

	"github.com/go-co-op/gocron/v2"
)

// TripGeneration is the part of the trip generator the nightly job drives.
type TripGeneration interface {
	GenerateRange(ctx context.Context, from, to time.Time) ([]models.GenerationSummary, error)
}

// HoldSweeper frees seats held by unpaid or abandoned bookings.
type HoldSweeper interface {
	ExpirePending(ctx context.Context) (int, error)
	ReleaseOrphans(ctx context.Context) (int, error)
}

type Config struct {
	Location          *time.Location
	GenerateAheadDays int
	// GenerateHour and GenerateMinute are the local time of the daily run.
	GenerateHour, GenerateMinute uint
	SweepEvery                   time.Duration
}

// Runner owns the background jobs of the service.
type Runner struct {
	Generator TripGeneration
	Holds     HoldSweeper
	Config    Config
	Now       func() time.Time

	scheduler gocron.Scheduler
}

func (r *Runner) now() time.Time {
	loc := r.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	if r.Now != nil {
		return r.Now().In(loc)
	}
	return time.Now().In(loc)
}

// GenerateAhead materializes trips from today through GenerateAheadDays ahead.
func (r *Runner) GenerateAhead(ctx context.Context) error {
	today := r.now()
	from := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, max(r.Config.GenerateAheadDays, 0))

	sums, err := r.Generator.GenerateRange(ctx, from, to)
	created, skipped := 0, 0
	for _, s := range sums {
		created += len(s.Created)
		skipped += len(s.Skipped)
	}
	if err != nil {
		utils.LogEvent("", "jobs", "generate_failed", fmt.Sprintf("from=%s to=%s err=%v",
			utils.FormatDate(from), utils.FormatDate(to), err))
		return err
	}
	utils.LogEvent("", "jobs", "generate", fmt.Sprintf("from=%s to=%s created=%d skipped=%d",
		utils.FormatDate(from), utils.FormatDate(to), created, skipped))
	return nil
}

// SweepHolds expires unpaid tickets, then frees holds no ticket refers to.
func (r *Runner) SweepHolds(ctx context.Context) error {
	expired, err := r.Holds.ExpirePending(ctx)
	if err != nil {
		utils.LogEvent("", "jobs", "expire_failed", err.Error())
		return err
	}
	orphans, err := r.Holds.ReleaseOrphans(ctx)
	if err != nil {
		utils.LogEvent("", "jobs", "orphans_failed", err.Error())
		return err
	}
	if expired > 0 || orphans > 0 {
		utils.LogEvent("", "jobs", "sweep", fmt.Sprintf("expired=%d orphans=%d", expired, orphans))
	}
	return nil
}

// Start schedules the daily generation run and the hold sweeper.
func (r *Runner) Start(ctx context.Context) error {
	loc := r.Config.Location
	if loc == nil {
		loc = time.UTC
	}
	every := r.Config.SweepEvery
	if every <= 0 {
		every = time.Minute
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(r.Config.GenerateHour, r.Config.GenerateMinute, 0))),
		gocron.NewTask(func() { _ = r.GenerateAhead(ctx) }),
		gocron.WithName("generate-trips"),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { _ = r.SweepHolds(ctx) }),
		gocron.WithName("sweep-holds"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}

	r.scheduler = s
	s.Start()
	utils.LogEvent("", "jobs", "start", fmt.Sprintf("generate_at=%02d:%02d sweep_every=%s tz=%s",
		r.Config.GenerateHour, r.Config.GenerateMinute, every, loc))
	return nil
}

// Jobs lists the scheduled job names.
func (r *Runner) Jobs() []string {
	if r.scheduler == nil {
		return nil
	}
	var names []string
	for _, j := range r.scheduler.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

func (r *Runner) Shutdown() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}
