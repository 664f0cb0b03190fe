package handlers

import (
	"net/http"

	"busline/internal/domain/models"
	"busline/internal/http/middleware"
	"busline/internal/services"

	"github.com/gin-gonic/gin"
)

type assignRequest struct {
	services.AssignInput
	Date string `json:"date" binding:"required,isodate"`
}

type reassignRequest struct {
	BusID  int64  `json:"busId" binding:"required,gt=0"`
	Reason string `json:"reason" binding:"required,max=255"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ListAssignments: GET /assignments?date=YYYY-MM-DD&routeId=
func (h *Handler) ListAssignments(c *gin.Context) {
	date, ok := queryDate(c, "date")
	if !ok {
		return
	}
	routeID, ok := queryID(c, "routeId")
	if !ok {
		return
	}
	list, err := h.Assignments.ListForDate(c.Request.Context(), date, routeID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": c.Query("date"), "assignments": list})
}

func (h *Handler) CreateAssignment(c *gin.Context) {
	var req assignRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	date, ok := parseDate(c, "date", req.Date)
	if !ok {
		return
	}
	in := req.AssignInput
	in.Date = date
	a, err := h.Assignments.Assign(c.Request.Context(), in)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) ReassignBus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req reassignRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	a, err := h.Assignments.Reassign(c.Request.Context(), id, req.BusID, req.Reason, middleware.GetActor(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAssignment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.Assignments.Remove(c.Request.Context(), id); err != nil {
		RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AssignmentHistory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	changes, err := h.Assignments.History(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignmentId": id, "changes": changes})
}

func (h *Handler) SetAssignmentStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	a, err := h.Assignments.SetStatus(c.Request.Context(), id, models.AssignmentStatus(req.Status))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}
