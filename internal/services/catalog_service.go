package services

import (
	"context"
	"fmt"

	"busline/internal/domain"
	"busline/internal/domain/models"
	"busline/internal/utils"
)

// CatalogService serves routes and schedule templates.
type CatalogService struct {
	Routes    RouteStore
	Schedules ScheduleStore
	RequestID string
}

type CreateScheduleInput struct {
	RouteID                int64    `json:"routeId" binding:"required,gt=0"`
	Hour                   *int     `json:"hour" binding:"required,hour"`
	IsExpress              bool     `json:"isExpress"`
	ExpressPriceMultiplier *float64 `json:"expressPriceMultiplier"`
	IsActive               *bool    `json:"isActive"`
}

func (s CatalogService) GetRoute(ctx context.Context, id int64) (models.Route, error) {
	if id <= 0 {
		return models.Route{}, domain.ValidationError{Field: "route_id", Msg: "invalid id"}
	}
	return s.Routes.GetRoute(ctx, id)
}

func (s CatalogService) ListRoutes(ctx context.Context, activeOnly bool) ([]models.Route, error) {
	return s.Routes.ListRoutes(ctx, activeOnly)
}

func (s CatalogService) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	if id <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "schedule_id", Msg: "invalid id"}
	}
	return s.Schedules.GetSchedule(ctx, id)
}

// ListSchedulesByRoute returns the route's templates ordered by hour.
func (s CatalogService) ListSchedulesByRoute(ctx context.Context, routeID int64) ([]models.Schedule, error) {
	if _, err := s.GetRoute(ctx, routeID); err != nil {
		return nil, err
	}
	return s.Schedules.ListSchedulesByRoute(ctx, routeID)
}

func (s CatalogService) CreateSchedule(ctx context.Context, in CreateScheduleInput) (models.Schedule, error) {
	if in.Hour == nil || !models.ValidHour(*in.Hour) {
		return models.Schedule{}, domain.ValidationError{Field: "hour", Msg: "must be between 0 and 23"}
	}
	multiplier := models.DefaultExpressMultiplier
	if in.ExpressPriceMultiplier != nil {
		multiplier = *in.ExpressPriceMultiplier
	}
	if multiplier <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "expressPriceMultiplier", Msg: "must be greater than 0"}
	}
	if _, err := s.GetRoute(ctx, in.RouteID); err != nil {
		return models.Schedule{}, err
	}
	sc := models.Schedule{
		RouteID:                in.RouteID,
		Hour:                   *in.Hour,
		IsExpress:              in.IsExpress,
		ExpressPriceMultiplier: multiplier,
		IsActive:               true,
	}
	if in.IsActive != nil {
		sc.IsActive = *in.IsActive
	}
	if err := s.Schedules.CreateSchedule(ctx, &sc); err != nil {
		return models.Schedule{}, err
	}
	utils.LogEvent(requestID(ctx, s.RequestID), "catalog", "create_schedule",
		fmt.Sprintf("schedule_id=%d route_id=%d hour=%d express=%t", sc.ID, sc.RouteID, sc.Hour, sc.IsExpress))
	return sc, nil
}

// PriceFor is the fare a trip generated from scheduleID would sell at today.
func (s CatalogService) PriceFor(ctx context.Context, scheduleID int64) (int64, error) {
	sc, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	r, err := s.Routes.GetRoute(ctx, sc.RouteID)
	if err != nil {
		return 0, err
	}
	return sc.PriceFor(r), nil
}
