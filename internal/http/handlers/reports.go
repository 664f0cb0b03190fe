package handlers

import (
	"net/http"

	"busline/internal/services"

	"github.com/gin-gonic/gin"
)

// SalesReport: GET /reports/sales?from=YYYY-MM-DD&to=YYYY-MM-DD&routeId=
// to defaults to from.
func (h *Handler) SalesReport(c *gin.Context) {
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to := from
	if c.Query("to") != "" {
		if to, ok = queryDate(c, "to"); !ok {
			return
		}
	}
	routeID, ok := queryID(c, "routeId")
	if !ok {
		return
	}
	rows, err := h.Reports.SalesReport(c.Request.Context(), services.SalesReportFilter{From: from, To: to, RouteID: routeID})
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	var revenue int64
	for _, r := range rows {
		revenue += r.Revenue
	}
	c.JSON(http.StatusOK, gin.H{"trips": rows, "revenue": revenue})
}
