package handlers

import (
	"context"

	"busline/internal/services"
)

// Handler serves the /api surface on top of the domain services.
type Handler struct {
	Catalog     services.CatalogService
	Assignments services.AssignmentService
	Trips       services.TripGenerator
	Inventory   services.SeatInventory
	Tickets     services.TicketService
	Board       services.BoardService
	Docs        services.DocsService
	Reports     services.ReportsService

	// Ping checks storage for /health; nil reports ok.
	Ping func(ctx context.Context) error
}
