package api

import (
	"log"
	stdhttp "net/http"

	intconfig "busline/internal/config"
	h "busline/internal/http/handlers"
	"busline/internal/http/middleware"

	"github.com/gin-gonic/gin"
)

func NewRouter(env intconfig.Env, hd *h.Handler) *gin.Engine {
	h.RegisterValidators()

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		log.Printf("warning: failed to set trusted proxies: %v", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"code":   "not_found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	operator := middleware.Auth(env.JWTSecret)

	api := r.Group("/api")
	{
		api.GET("/health", hd.Health)

		// Catalog
		api.GET("/routes", hd.ListRoutes)
		api.GET("/routes/:id/schedules", hd.ListRouteSchedules)
		api.POST("/schedules", operator, hd.CreateSchedule)

		// Assignment ledger
		assignments := api.Group("/assignments", operator)
		assignments.GET("", hd.ListAssignments)
		assignments.POST("", hd.CreateAssignment)
		assignments.POST("/:id/reassign", hd.ReassignBus)
		assignments.DELETE("/:id", hd.DeleteAssignment)
		assignments.GET("/:id/history", hd.AssignmentHistory)
		assignments.PUT("/:id/status", hd.SetAssignmentStatus)

		// Trips
		api.GET("/board", hd.GetBoard)
		trips := api.Group("/trips")
		trips.POST("/generate", operator, hd.GenerateTrips)
		trips.GET("/:id", hd.GetTrip)
		trips.GET("/:id/seats", hd.TripSeats)
		trips.GET("/:id/tickets", operator, hd.ListTripTickets)
		trips.PUT("/:id/status", operator, hd.SetTripStatus)

		api.GET("/reports/sales", operator, hd.SalesReport)

		// Tickets
		tickets := api.Group("/tickets")
		mountTickets(tickets, hd, operator)
	}

	return r
}

func mountTickets(g *gin.RouterGroup, hd *h.Handler, operator gin.HandlerFunc) {
	g.POST("", hd.CreateTicket)
	g.GET("/:id", hd.GetTicket)
	g.GET("/:id/qr.png", hd.TicketQR)
	g.GET("/:id/e-ticket", hd.TicketETicket)
	g.GET("/:id/receipt", hd.TicketReceipt)

	// payment authority hooks
	g.POST("/:id/pay", operator, hd.TicketAction(hd.Tickets.ConfirmPayment))
	g.POST("/:id/fail", operator, hd.TicketAction(hd.Tickets.FailPayment))

	// scanner and back-office actions
	g.POST("/:id/cancel", operator, hd.TicketAction(hd.Tickets.Cancel))
	g.POST("/verify", operator, hd.VerifyTicket)
	g.POST("/:id/board", operator, hd.TicketAction(hd.Tickets.Board))
	g.POST("/:id/complete", operator, hd.TicketAction(hd.Tickets.Complete))
	g.POST("/:id/refund", operator, hd.TicketAction(hd.Tickets.Refund))
}
