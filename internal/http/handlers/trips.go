package handlers

import (
	"net/http"

	"busline/internal/domain/models"

	"github.com/gin-gonic/gin"
)

// generateRequest takes a single date or an inclusive from/to range.
type generateRequest struct {
	Date string `json:"date" binding:"omitempty,isodate"`
	From string `json:"from" binding:"omitempty,isodate"`
	To   string `json:"to" binding:"omitempty,isodate"`
}

func (h *Handler) GenerateTrips(c *gin.Context) {
	var req generateRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	ctx := c.Request.Context()

	if req.Date != "" {
		date, ok := parseDate(c, "date", req.Date)
		if !ok {
			return
		}
		sum, err := h.Trips.GenerateForDate(ctx, date)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"summary": sum, "counts": sum.Counts()})
		return
	}

	if req.From == "" || req.To == "" {
		respondError(c, http.StatusBadRequest, "validation_error", "date or from/to is required", nil)
		return
	}
	from, ok := parseDate(c, "from", req.From)
	if !ok {
		return
	}
	to, ok := parseDate(c, "to", req.To)
	if !ok {
		return
	}
	sums, err := h.Trips.GenerateRange(ctx, from, to)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": sums})
}

// GetBoard: GET /board?date=YYYY-MM-DD&routeId=
func (h *Handler) GetBoard(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	routeID, ok := queryID(c, "routeId")
	if !ok {
		return
	}
	entries, err := h.Board.Board(c.Request.Context(), date, routeID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "entries": entries})
}

func (h *Handler) GetTrip(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	t, err := h.Trips.GetTrip(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) TripSeats(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	seats, err := h.Inventory.SeatMap(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tripId": id, "seats": seats})
}

func (h *Handler) SetTripStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	t, err := h.Trips.TransitionTrip(c.Request.Context(), id, models.TripStatus(req.Status))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
