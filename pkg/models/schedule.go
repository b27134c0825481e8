package models

import (
	"errors"
	"time"
)

// ResumeSchedule is a persisted wake-up for an execution parked on a delay
// step. The scheduler polls for due schedules and republishes a ResumeStep
// event; the waiting execution never occupies a worker.
type ResumeSchedule struct {
	// ID uniquely identifies this schedule entry.
	ID string `json:"id" validate:"required"`

	// ExecutionID and StepID identify the parked step execution to resume.
	ExecutionID string `json:"execution_id" validate:"required"`
	StepID      string `json:"step_id"      validate:"required"`

	// OrganizationID scopes the schedule for tenant isolation.
	OrganizationID string `json:"organization_id" validate:"required"`

	// ResumeAt is the precomputed wake-up time. Polling on a stored time
	// keeps scheduling centralized instead of holding per-delay timers.
	ResumeAt time.Time `json:"resume_at" validate:"required"`

	// Delivered marks schedules whose ResumeStep event has been published.
	Delivered bool `json:"delivered"`

	CreatedAt time.Time `json:"created_at"`
}

// IsDue reports whether this schedule should fire at the given time.
func (s *ResumeSchedule) IsDue(now time.Time) bool {
	return !s.Delivered && !s.ResumeAt.After(now)
}

// Validate performs validation on the schedule fields.
func (s *ResumeSchedule) Validate() error {
	if s.ID == "" || s.ExecutionID == "" || s.StepID == "" {
		return ErrInvalidSchedule
	}

	if s.ResumeAt.IsZero() {
		return ErrInvalidSchedule
	}

	return nil
}

// ErrInvalidSchedule is returned when schedule validation fails.
var ErrInvalidSchedule = errors.New("invalid resume schedule")
