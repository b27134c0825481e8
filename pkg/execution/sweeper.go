package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

const DefaultStaleAfter = 15 * time.Minute

// Sweeper recovers executions that stopped moving: steps parked while their
// journey was paused, and steps a worker abandoned mid-attempt. It only
// re-emits messages; the executor applies its normal rules on redelivery.
type Sweeper struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	staleAfter  time.Duration
	logger      *slog.Logger
}

func NewSweeper(p persistence.Persistence, publisher eventbus.EventPublisher, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &Sweeper{
		persistence: p,
		publisher:   publisher,
		staleAfter:  staleAfter,
		logger:      logger.With("module", "sweeper"),
	}
}

// Sweep looks at every stalled step execution once. Errors on individual
// rows are logged and do not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.staleAfter)

	stalled, err := s.persistence.Executions().StalledSteps(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stalled steps: %w", err)
	}

	for _, stepExec := range stalled {
		if err := s.sweepOne(ctx, stepExec); err != nil {
			s.logger.ErrorContext(ctx, "Failed to sweep stalled step",
				"execution_id", stepExec.ExecutionID, "step_id", stepExec.StepID, "error", err)
		}
	}

	return nil
}

func (s *Sweeper) sweepOne(ctx context.Context, stepExec *models.StepExecution) error {
	execution, err := s.persistence.Executions().GetByID(ctx, stepExec.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return s.settle(ctx, stepExec, models.StepExecutionStatusSkipped)
		}

		return err
	}

	if execution.Terminal() {
		return s.settle(ctx, stepExec, models.StepExecutionStatusSkipped)
	}

	journey, err := s.persistence.Journeys().GetByID(ctx, execution.OrganizationID, execution.JourneyID)
	if err != nil && !persistence.IsJourneyNotFound(err) {
		return err
	}

	// Paused journeys stay parked; the row is picked up again on the next
	// pass after the journey resumes. Missing journeys resolve on the
	// executor side, which cancels the execution.
	if err == nil && journey.Status == models.JourneyStatusPaused {
		return nil
	}

	switch stepExec.Status {
	case models.StepExecutionStatusPending:
		return s.reemitParked(ctx, execution, stepExec)
	case models.StepExecutionStatusRunning:
		return s.reclaimAbandoned(ctx, execution, stepExec)
	default:
		return nil
	}
}

// reemitParked redelivers a pause-parked hop. A row with zero attempts never
// started and gets a fresh StepAvailable; a row that was mid-flight resumes
// through ResumeStep.
func (s *Sweeper) reemitParked(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution) error {
	var event eventbus.Event

	if stepExec.Attempts == 0 {
		if err := s.settle(ctx, stepExec, models.StepExecutionStatusSkipped); err != nil {
			return err
		}

		event = events.StepAvailable{
			BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			StepID:      stepExec.StepID,
			State:       stepExec.Result,
		}
	} else {
		event = events.ResumeStep{
			BaseEvent:   events.NewBaseEvent(events.ResumeStepEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			StepID:      stepExec.StepID,
		}
	}

	s.logger.InfoContext(ctx, "Re-emitting parked step",
		"execution_id", execution.ID, "step_id", stepExec.StepID, "attempts", stepExec.Attempts)

	return s.publisher.Publish(ctx, execution.ContactID, event)
}

// reclaimAbandoned handles a running row older than the staleness cutoff.
// Delay steps run long by design and are left alone; anything else gets its
// attempt marked failed and a ResumeStep so the retry path takes over.
func (s *Sweeper) reclaimAbandoned(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution) error {
	version, err := s.persistence.Versions().GetByID(ctx, execution.VersionID)
	if err != nil {
		return err
	}

	step := version.Definition.StepByID(stepExec.StepID)
	if step != nil && step.Type == models.StepTypeDelay {
		return nil
	}

	now := time.Now().UTC()
	stepExec.Status = models.StepExecutionStatusFailed
	stepExec.Error = "step attempt stalled past staleness cutoff"
	stepExec.CompletedAt = &now

	if err := s.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
		return err
	}

	s.logger.WarnContext(ctx, "Reclaimed abandoned step attempt",
		"execution_id", execution.ID, "step_id", stepExec.StepID, "attempt", stepExec.Attempts)

	return s.publisher.Publish(ctx, execution.ContactID, events.ResumeStep{
		BaseEvent:   events.NewBaseEvent(events.ResumeStepEvent, execution.OrganizationID, execution.ContactID),
		ExecutionID: execution.ID,
		StepID:      stepExec.StepID,
	})
}

func (s *Sweeper) settle(ctx context.Context, stepExec *models.StepExecution, status models.StepExecutionStatus) error {
	now := time.Now().UTC()
	stepExec.Status = status
	stepExec.CompletedAt = &now

	return s.persistence.Executions().SaveStep(ctx, stepExec)
}
