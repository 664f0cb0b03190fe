package handlers

import (
	"errors"
	"net/http"

	"busline/internal/domain"
	"busline/internal/http/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses. Internal errors
// never leak their cause to the client.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case domain.IsDuplicateAssignment(err):
		respondError(c, http.StatusConflict, "duplicate_assignment", err.Error(), nil)
	case domain.IsSeatUnavailable(err):
		respondError(c, http.StatusConflict, "seat_unavailable", err.Error(), nil)
	case domain.IsAlreadyExists(err):
		respondError(c, http.StatusConflict, "already_exists", err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil)
	case domain.IsTripNotBookable(err):
		respondError(c, http.StatusUnprocessableEntity, "trip_not_bookable", err.Error(), nil)
	case domain.IsInvalidTransition(err):
		respondError(c, http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// respondBindError reports payload problems, listing failed validator rules.
func respondBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		details := make([]fieldError, 0, len(ve))
		for _, fe := range ve {
			details = append(details, fieldError{Field: fe.Namespace(), Rule: fe.Tag()})
		}
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload", details)
		return
	}
	respondError(c, http.StatusBadRequest, "invalid_payload", err.Error(), nil)
}
