package handlers

import (
	"context"
	"net/http"
	"strconv"

	"busline/internal/domain/models"
	"busline/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

type verifyRequest struct {
	QR string `json:"qr" binding:"required"`
}

func (h *Handler) CreateTicket(c *gin.Context) {
	var in services.CreateTicketInput
	if !BindJSONOrError(c, &in) {
		return
	}
	t, err := h.Tickets.CreateTicket(c.Request.Context(), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTicket(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	t, err := h.Tickets.GetTicket(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTripTickets(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.Tickets.ListTicketsByTrip(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tripId": id, "tickets": list})
}

// TicketAction adapts a ticket state change (pay, board, cancel...) to a
// POST /tickets/:id/<action> handler.
func (h *Handler) TicketAction(action func(ctx context.Context, id int64) (models.Ticket, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		t, err := action(c.Request.Context(), id)
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}

func (h *Handler) VerifyTicket(c *gin.Context) {
	var req verifyRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	t, err := h.Tickets.VerifyQR(c.Request.Context(), req.QR)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// TicketQR: GET /tickets/:id/qr.png?size=256
func (h *Handler) TicketQR(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	size := defaultQRSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			respondError(c, http.StatusBadRequest, "validation_error", "size must be between 64 and 1024", nil)
			return
		}
		size = n
	}
	png, err := h.Docs.QRImage(c.Request.Context(), id, size)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) TicketETicket(c *gin.Context) {
	h.pdf(c, h.Docs.GenerateETicket)
}

func (h *Handler) TicketReceipt(c *gin.Context) {
	h.pdf(c, h.Docs.GenerateReceipt)
}

func (h *Handler) pdf(c *gin.Context, gen func(ctx context.Context, id int64) ([]byte, string, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	body, filename, err := gen(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", `inline; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
