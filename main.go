package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busline/internal/catalog"
	intconfig "busline/internal/config"
	intdb "busline/internal/db"
	"busline/internal/events"
	router "busline/internal/http"
	h "busline/internal/http/handlers"
	"busline/internal/jobs"
	"busline/internal/repositories"
	"busline/internal/repositories/memory"
	"busline/internal/services"
	"busline/internal/utils"

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"
)

// stores groups the storage ports; MySQL repositories or the memory store.
type stores struct {
	routes      services.RouteStore
	schedules   services.ScheduleStore
	buses       services.BusRegistry
	assignments services.AssignmentStore
	trips       services.TripStore
	seats       services.SeatStore
	tickets     services.TicketStore
	catalog     catalog.Writer
	ping        func(ctx context.Context) error
}

func mysqlStores() stores {
	routes := repositories.RouteRepository{}
	schedules := repositories.ScheduleRepository{}
	buses := repositories.BusRepository{}
	return stores{
		routes:      routes,
		schedules:   schedules,
		buses:       buses,
		assignments: repositories.AssignmentRepository{},
		trips:       repositories.TripRepository{},
		seats:       repositories.SeatRepository{},
		tickets:     repositories.TicketRepository{},
		catalog:     catalogWriter{routes, schedules, buses},
		ping:        intconfig.EnsureDB,
	}
}

type catalogWriter struct {
	repositories.RouteRepository
	repositories.ScheduleRepository
	repositories.BusRepository
}

func memoryStores() stores {
	st := memory.New()
	return stores{
		routes: st, schedules: st, buses: st, assignments: st,
		trips: st, seats: st, tickets: st, catalog: st,
	}
}

func main() {
	var (
		migrateOnly = flag.Bool("migrate", false, "apply database migrations and exit")
		seedFile    = flag.String("seed", "", "import routes, schedules and buses from a YAML file")
		noJobs      = flag.Bool("no-jobs", false, "do not start trip generation and hold expiry jobs")
		inMemory    = flag.Bool("in-memory", false, "keep all state in process memory (no MySQL)")
	)
	flag.Parse()

	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}
	if env.InsecureQRSecret() {
		if gin.Mode() == gin.ReleaseMode {
			log.Fatal("QR_SECRET must be set in release mode")
		}
		log.Println("warning: QR_SECRET not set, ticket QR codes are signed with the built-in key and can be forged")
	}

	var st stores
	if *inMemory {
		log.Println("using in-memory storage")
		st = memoryStores()
	} else {
		conn, err := intconfig.ConnectDB(env.DatabaseDSN)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer intconfig.CloseDB()
		if err := intdb.RunMigrations(conn); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		if *migrateOnly {
			log.Println("migrations applied")
			return
		}
		st = mysqlStores()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *seedFile != "" {
		if _, err := catalog.ImportFile(ctx, st.catalog, *seedFile); err != nil {
			log.Fatalf("seed %s failed: %v", *seedFile, err)
		}
	}

	publisher := events.NewRedisPublisher(env.RedisAddr)
	defer publisher.Close()
	if err := publisher.Ping(ctx); err != nil {
		log.Printf("warning: redis %s unreachable, seat events will be dropped: %v", env.RedisAddr, err)
	}

	inventory := services.SeatInventory{Trips: st.trips, Buses: st.buses, Seats: st.seats, Events: publisher}
	generator := services.TripGenerator{
		Schedules: st.schedules, Routes: st.routes, Buses: st.buses,
		Assignments: st.assignments, Trips: st.trips, Tickets: st.tickets,
	}
	tickets := services.TicketService{
		Trips: st.trips, Tickets: st.tickets, Seats: st.seats, Inventory: inventory,
		Signer:      utils.QRSigner{Key: []byte(env.QRSecret)},
		TaxRate:     env.TaxRate,
		HoldTimeout: env.PendingHoldTimeout,
		RetryDelay:  200 * time.Millisecond,
	}
	hd := &h.Handler{
		Catalog: services.CatalogService{Routes: st.routes, Schedules: st.schedules},
		Assignments: services.AssignmentService{
			Schedules: st.schedules, Buses: st.buses, Assignments: st.assignments,
			Trips: st.trips, Tickets: st.tickets,
			GraceDays: env.AssignmentGraceDays,
		},
		Trips:     generator,
		Inventory: inventory,
		Tickets:   tickets,
		Board:     services.BoardService{Routes: st.routes, Schedules: st.schedules, Assignments: st.assignments, Trips: st.trips},
		Docs:      services.DocsService{Tickets: st.tickets, Trips: st.trips, Routes: st.routes, Buses: st.buses},
		Reports:   services.ReportsService{Routes: st.routes, Trips: st.trips, Tickets: st.tickets},
		Ping:      st.ping,
	}

	runner := &jobs.Runner{
		Generator: generator,
		Holds:     tickets,
		Config: jobs.Config{
			Location:          env.Timezone,
			GenerateAheadDays: env.GenerateAheadDays,
			GenerateMinute:    5,
			SweepEvery:        time.Minute,
		},
	}
	if !*noJobs {
		if err := runner.Start(ctx); err != nil {
			log.Fatalf("failed to start jobs: %v", err)
		}
		defer runner.Shutdown()
		go func() { _ = runner.GenerateAhead(ctx) }()
	}

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           router.NewRouter(env, hd),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown failed: %v", err)
	}
	log.Println("server stopped")
}
