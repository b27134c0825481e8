// Package persistence provides the data storage abstraction layer for
// journeys, versions, executions and logs.
package persistence

import (
	"context"
	"time"

	"github.com/voyage-hq/voyage/pkg/models"
)

type Persistence interface {
	Journeys() JourneyRepository
	Versions() VersionRepository
	Executions() ExecutionRepository
	Logs() LogRepository
	Schedules() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// JourneyRepository stores journey definitions, scoped by organization for
// tenant isolation.
type JourneyRepository interface {
	List(ctx context.Context, organizationID string, page models.PageRequest) ([]*models.Journey, int, error)
	GetByID(ctx context.Context, organizationID, id string) (*models.Journey, error)
	Save(ctx context.Context, journey *models.Journey) error
	Delete(ctx context.Context, organizationID, id string) error

	// ActiveTriggersByType returns triggers of the given type attached to
	// journeys in the organization, regardless of journey status; the
	// matcher applies status rules itself so a paused journey is a skip,
	// not a missing trigger.
	ActiveTriggersByType(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.Trigger, error)

	// ActiveScheduledJourneys returns active journeys carrying at least
	// one scheduled trigger, across all organizations. The scheduler
	// evaluates their cron expressions each polling pass.
	ActiveScheduledJourneys(ctx context.Context) ([]*models.Journey, error)
}

// VersionRepository stores immutable published journey versions.
type VersionRepository interface {
	Save(ctx context.Context, version *models.JourneyVersion) error
	GetByID(ctx context.Context, id string) (*models.JourneyVersion, error)
	LatestByJourney(ctx context.Context, journeyID string) (*models.JourneyVersion, error)
	MaxVersionNumber(ctx context.Context, journeyID string) (int, error)
}

// ExecutionRepository stores per-contact execution state. All mutations are
// scoped to a single (journey, contact) pair; the conditional create is the
// concurrency primitive enforcing the single-active-execution invariant.
type ExecutionRepository interface {
	// CreateIfNoneActive inserts the execution unless an active execution
	// already exists for its (journey, contact) pair. Returns false with a
	// nil error when the insert lost to an existing active execution.
	CreateIfNoneActive(ctx context.Context, execution *models.Execution) (bool, error)

	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Update(ctx context.Context, execution *models.Execution) error
	ActiveByJourneyAndContact(ctx context.Context, journeyID, contactID string) (*models.Execution, error)
	ActiveByContact(ctx context.Context, organizationID, contactID string) ([]*models.Execution, error)
	List(ctx context.Context, organizationID string, status *models.ExecutionStatus, page models.PageRequest) ([]*models.Execution, int, error)

	SaveStep(ctx context.Context, step *models.StepExecution) error
	StepByID(ctx context.Context, id string) (*models.StepExecution, error)
	StepsByExecution(ctx context.Context, executionID string) ([]*models.StepExecution, error)
	// LatestStep returns the most recent step execution for a step within
	// an execution, or ErrStepExecutionNotFound.
	LatestStep(ctx context.Context, executionID, stepID string) (*models.StepExecution, error)
	// StalledSteps returns step executions the sweep should look at:
	// pending rows of any age plus running rows started before the cutoff.
	StalledSteps(ctx context.Context, cutoff time.Time) ([]*models.StepExecution, error)
}

// LogRepository stores append-only execution logs.
type LogRepository interface {
	Append(ctx context.Context, entry *models.ExecutionLog) error
	ByExecution(ctx context.Context, executionID string, page models.PageRequest) ([]*models.ExecutionLog, int, error)
}

// ScheduleRepository stores delay-step resume schedules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.ResumeSchedule) error
	Due(ctx context.Context, now time.Time) ([]*models.ResumeSchedule, error)
	MarkDelivered(ctx context.Context, id string) error
	DeleteByExecution(ctx context.Context, executionID string) error
}
