package services

import (
	"context"
	"time"

	"busline/internal/domain"
	"busline/internal/utils"
)

func clock(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return utils.NowUTC()
}

// requestID prefers the id stamped by the HTTP layer over the service field.
func requestID(ctx context.Context, fallback string) string {
	if rc, ok := domain.FromContext(ctx); ok && rc.RequestID != "" {
		return rc.RequestID
	}
	return fallback
}
