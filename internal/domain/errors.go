package domain

import (
	"errors"
	"fmt"
)

type NotFoundError struct {
	Resource string
	ID       any
	Err      error
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource == "":
		return "not found"
	case e.ID != nil:
		return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
	default:
		return fmt.Sprintf("%s not found", e.Resource)
	}
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConflictError blocks a command because dependent state exists (e.g. sold
// tickets on a trip whose assignment is being removed).
type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

// DuplicateAssignmentError is returned when a (schedule, bus, date) slot is
// already taken.
type DuplicateAssignmentError struct {
	ScheduleID int64
	BusID      int64
	Date       string
	Err        error
}

func (e DuplicateAssignmentError) Error() string {
	return fmt.Sprintf("bus %d already assigned to schedule %d on %s", e.BusID, e.ScheduleID, e.Date)
}

func (e DuplicateAssignmentError) Unwrap() error { return e.Err }

// AlreadyExistsError marks an idempotency hit: the record the caller wanted
// to create is already there. ExistingID points at it when known.
type AlreadyExistsError struct {
	Resource   string
	ExistingID int64
	Err        error
}

func (e AlreadyExistsError) Error() string {
	if e.ExistingID > 0 {
		return fmt.Sprintf("%s already exists (id=%d)", e.Resource, e.ExistingID)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e AlreadyExistsError) Unwrap() error { return e.Err }

type SeatUnavailableError struct {
	TripID int64
	SeatID string
	Err    error
}

func (e SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat %s on trip %d is not available", e.SeatID, e.TripID)
}

func (e SeatUnavailableError) Unwrap() error { return e.Err }

type TripNotBookableError struct {
	TripID int64
	Status string
}

func (e TripNotBookableError) Error() string {
	return fmt.Sprintf("trip %d is %s and cannot be sold", e.TripID, e.Status)
}

type InvalidTransitionError struct {
	Resource string
	From     string
	To       string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot move from %s to %s", e.Resource, e.From, e.To)
}

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsDuplicateAssignment(err error) bool {
	var target DuplicateAssignmentError
	return errors.As(err, &target)
}

func IsAlreadyExists(err error) bool {
	var target AlreadyExistsError
	return errors.As(err, &target)
}

func IsSeatUnavailable(err error) bool {
	var target SeatUnavailableError
	return errors.As(err, &target)
}

func IsTripNotBookable(err error) bool {
	var target TripNotBookableError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
