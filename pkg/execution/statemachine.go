// Package execution drives per-contact journey runs: the status state
// machine, the step interpreter, bounded retries and the staleness sweep.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// Outcome describes how a step attempt finished and, for condition steps,
// which branch to follow.
type Outcome struct {
	Status models.StepExecutionStatus
	Branch string
	Result map[string]any
}

// StateMachine governs legal execution status transitions and next-step
// selection. Active is the only non-absorbing state; completed, failed and
// canceled absorb.
type StateMachine struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewStateMachine(p persistence.Persistence, logger *slog.Logger) *StateMachine {
	return &StateMachine{
		persistence: p,
		logger:      logger.With("module", "execution_state_machine"),
	}
}

// Advance finalizes the just-finished step execution, selects the next step
// from the frozen graph and returns the events to publish: a StepCompleted,
// then either a StepAvailable for the next step or an ExecutionCompleted
// when the path ends.
func (sm *StateMachine) Advance(
	ctx context.Context,
	execution *models.Execution,
	version *models.JourneyVersion,
	stepExec *models.StepExecution,
	outcome Outcome,
) ([]eventbus.Event, error) {
	if execution.Terminal() {
		return nil, fmt.Errorf("%w: execution %s has status %s", models.ErrInvalidState, execution.ID, execution.Status)
	}

	now := time.Now().UTC()
	stepExec.Status = outcome.Status
	stepExec.Result = outcome.Result
	stepExec.CompletedAt = &now

	if err := sm.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
		return nil, fmt.Errorf("failed to finalize step execution: %w", err)
	}

	out := []eventbus.Event{
		events.StepCompleted{
			BaseEvent:   events.NewBaseEvent(events.StepCompletedEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			StepID:      stepExec.StepID,
			Result:      outcome.Result,
		},
	}

	next, err := sm.selectNext(execution, version, stepExec.StepID, outcome.Branch)
	if err != nil {
		return nil, err
	}

	if next == nil {
		completedEvents, err := sm.complete(ctx, execution)
		if err != nil {
			return nil, err
		}

		return append(out, completedEvents...), nil
	}

	return append(out, events.StepAvailable{
		BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, execution.OrganizationID, execution.ContactID),
		ExecutionID: execution.ID,
		StepID:      next.ToStepID,
		State:       outcome.Result,
	}), nil
}

// selectNext picks the outgoing connection to follow. Condition steps route
// on the branch label, split steps use deterministic weighted selection, and
// every other type must have exactly one unlabeled outgoing connection.
func (sm *StateMachine) selectNext(execution *models.Execution, version *models.JourneyVersion, stepID, branch string) (*models.Connection, error) {
	step := version.Definition.StepByID(stepID)
	if step == nil {
		return nil, fmt.Errorf("%w: step %s not in version %s", models.ErrGraphIntegrity, stepID, version.ID)
	}

	outgoing := version.Definition.Outgoing(stepID)
	if len(outgoing) == 0 {
		return nil, nil
	}

	switch step.Type {
	case models.StepTypeCondition:
		for _, conn := range outgoing {
			if conn.Label == branch {
				return conn, nil
			}
		}

		return nil, fmt.Errorf("%w: condition step %s has no connection labeled %q", models.ErrGraphIntegrity, stepID, branch)
	case models.StepTypeSplit:
		return pickSplitConnection(execution.ID, stepID, outgoing)
	default:
		if len(outgoing) != 1 || outgoing[0].Label != "" {
			return nil, fmt.Errorf("%w: step %s of type %s must have exactly one unlabeled outgoing connection", models.ErrGraphIntegrity, stepID, step.Type)
		}

		return outgoing[0], nil
	}
}

func (sm *StateMachine) complete(ctx context.Context, execution *models.Execution) ([]eventbus.Event, error) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.CurrentStepID = ""

	if err := sm.persistence.Executions().Update(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to complete execution: %w", err)
	}

	sm.appendLog(ctx, execution.ID, models.LogLevelInfo, "execution completed", nil)

	return []eventbus.Event{
		events.ExecutionCompleted{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCompletedEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			JourneyID:   execution.JourneyID,
			Duration:    now.Sub(execution.StartedAt),
		},
	}, nil
}

// Cancel transitions an active execution to canceled. Canceling an already
// canceled execution is an idempotent no-op; canceling a completed or failed
// execution is an error. Past step executions are never rewritten, and any
// already enqueued side effect still completes.
func (sm *StateMachine) Cancel(ctx context.Context, executionID, canceledBy string) ([]eventbus.Event, error) {
	execution, err := sm.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status == models.ExecutionStatusCanceled {
		return nil, nil
	}

	if execution.Terminal() {
		return nil, fmt.Errorf("%w: cannot cancel execution %s with status %s", models.ErrInvalidState, executionID, execution.Status)
	}

	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCanceled
	execution.CompletedAt = &now

	if err := sm.persistence.Executions().Update(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to cancel execution: %w", err)
	}

	if err := sm.persistence.Schedules().DeleteByExecution(ctx, executionID); err != nil {
		sm.logger.WarnContext(ctx, "Failed to clear resume schedules for canceled execution",
			"execution_id", executionID, "error", err)
	}

	sm.appendLog(ctx, executionID, models.LogLevelInfo, "execution canceled", map[string]any{"canceled_by": canceledBy})

	return []eventbus.Event{
		events.ExecutionCanceled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCanceledEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			JourneyID:   execution.JourneyID,
			CanceledBy:  canceledBy,
		},
	}, nil
}

// Fail marks the step execution and its execution failed, appending the
// terminal log entry recording the cause.
func (sm *StateMachine) Fail(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution, cause error) ([]eventbus.Event, error) {
	now := time.Now().UTC()

	if stepExec != nil {
		stepExec.Status = models.StepExecutionStatusFailed
		stepExec.Error = cause.Error()
		stepExec.CompletedAt = &now

		if err := sm.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
			return nil, fmt.Errorf("failed to record failed step execution: %w", err)
		}
	}

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now

	if err := sm.persistence.Executions().Update(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to record failed execution: %w", err)
	}

	metadata := map[string]any{"cause": cause.Error()}
	if stepExec != nil {
		metadata["step_id"] = stepExec.StepID
		metadata["attempts"] = stepExec.Attempts
	}

	sm.appendLog(ctx, execution.ID, models.LogLevelError, "execution failed", metadata)

	failedEvent := events.ExecutionFailed{
		BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, execution.OrganizationID, execution.ContactID),
		ExecutionID: execution.ID,
		JourneyID:   execution.JourneyID,
		Error:       cause.Error(),
	}
	if stepExec != nil {
		failedEvent.StepID = stepExec.StepID
	}

	return []eventbus.Event{failedEvent}, nil
}

func (sm *StateMachine) appendLog(ctx context.Context, executionID string, level models.LogLevel, message string, metadata map[string]any) {
	entry := &models.ExecutionLog{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		Level:       level,
		Message:     message,
		Metadata:    metadata,
		Timestamp:   time.Now().UTC(),
	}

	if err := sm.persistence.Logs().Append(ctx, entry); err != nil {
		sm.logger.ErrorContext(ctx, "Failed to append execution log", "execution_id", executionID, "error", err)
	}
}

// IsGraphIntegrityError reports whether an error is an execution-fatal graph
// defect rather than a transient failure.
func IsGraphIntegrityError(err error) bool {
	return errors.Is(err, models.ErrGraphIntegrity)
}
