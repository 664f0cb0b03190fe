package models

import "time"

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentAssigned:   {AssignmentInProgress, AssignmentCancelled},
	AssignmentInProgress: {AssignmentCompleted, AssignmentCancelled},
}

func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentAssigned, AssignmentInProgress, AssignmentCompleted, AssignmentCancelled:
		return true
	}
	return false
}

func (s AssignmentStatus) CanTransition(to AssignmentStatus) bool {
	for _, next := range assignmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ScheduleAssignment binds one bus to a schedule on one calendar date.
// (ScheduleID, BusID, Date) is unique.
type ScheduleAssignment struct {
	ID          int64            `json:"id"`
	ScheduleID  int64            `json:"scheduleId"`
	BusID       int64            `json:"busId"`
	Date        time.Time        `json:"date"`
	Status      AssignmentStatus `json:"status"`
	DriverID    *int64           `json:"driverId,omitempty"`
	AssistantID *int64           `json:"assistantId,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// BusAssignmentChange is one append-only audit row. OldBusID is nil for the
// initial assignment.
type BusAssignmentChange struct {
	ID           int64     `json:"id"`
	AssignmentID int64     `json:"assignmentId"`
	OldBusID     *int64    `json:"oldBusId"`
	NewBusID     int64     `json:"newBusId"`
	Reason       string    `json:"reason"`
	ChangedBy    string    `json:"changedBy"`
	ChangedAt    time.Time `json:"changedAt"`
}
