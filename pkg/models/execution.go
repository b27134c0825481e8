package models

import "time"

// ExecutionStatus represents the lifecycle state of one contact's run
// through a journey version. Active is the only non-absorbing state.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCanceled  ExecutionStatus = "canceled"
)

// Execution is one contact's in-progress or completed run through a journey
// version. At most one active execution exists per (journey, contact) pair;
// terminal executions are retained for audit and analytics, never deleted.
type Execution struct {
	ID             string          `json:"id"`
	JourneyID      string          `json:"journey_id"      validate:"required"`
	VersionID      string          `json:"version_id"      validate:"required"`
	OrganizationID string          `json:"organization_id" validate:"required"`
	ContactID      string          `json:"contact_id"      validate:"required"`
	Status         ExecutionStatus `json:"status"`
	CurrentStepID  string          `json:"current_step_id,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the execution has reached an absorbing state.
func (e *Execution) Terminal() bool {
	return e.Status != ExecutionStatusActive
}

// StepExecutionStatus represents the state of one step attempt.
type StepExecutionStatus string

const (
	StepExecutionStatusPending   StepExecutionStatus = "pending"
	StepExecutionStatusRunning   StepExecutionStatus = "running"
	StepExecutionStatusCompleted StepExecutionStatus = "completed"
	StepExecutionStatusFailed    StepExecutionStatus = "failed"
	StepExecutionStatusSkipped   StepExecutionStatus = "skipped"
)

// StepExecution is one attempt of one step within an execution, created
// immediately before dispatch.
type StepExecution struct {
	ID          string              `json:"id"`
	ExecutionID string              `json:"execution_id" validate:"required"`
	StepID      string              `json:"step_id"      validate:"required"`
	Status      StepExecutionStatus `json:"status"`
	Attempts    int                 `json:"attempts"`
	Result      map[string]any      `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// LogLevel classifies execution log entries.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLog is an append-only audit entry tied to an execution. Entries
// are immutable once written.
type ExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id" validate:"required"`
	Level       LogLevel       `json:"level"`
	Message     string         `json:"message"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
