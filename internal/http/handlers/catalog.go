package handlers

import (
	"net/http"
	"strconv"

	"busline/internal/services"

	"github.com/gin-gonic/gin"
)

// ListRoutes returns the route catalog; ?active=false includes inactive routes.
func (h *Handler) ListRoutes(c *gin.Context) {
	activeOnly := true
	if raw := c.Query("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "validation_error", "active must be a boolean", nil)
			return
		}
		activeOnly = v
	}
	routes, err := h.Catalog.ListRoutes(c.Request.Context(), activeOnly)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}

func (h *Handler) ListRouteSchedules(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	schedules, err := h.Catalog.ListSchedulesByRoute(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

func (h *Handler) CreateSchedule(c *gin.Context) {
	var in services.CreateScheduleInput
	if !BindJSONOrError(c, &in) {
		return
	}
	sc, err := h.Catalog.CreateSchedule(c.Request.Context(), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}
