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

// Executor interprets steps against the execution's frozen version. Each
// StepAvailable message is one attempt of one step; the executor never holds
// state between messages, so any worker can pick up any hop.
type Executor struct {
	persistence  persistence.Persistence
	publisher    eventbus.EventPublisher
	stateMachine *StateMachine
	retryPolicy  *RetryPolicy
	logger       *slog.Logger
}

func NewExecutor(p persistence.Persistence, publisher eventbus.EventPublisher, retryPolicy *RetryPolicy, logger *slog.Logger) *Executor {
	return &Executor{
		persistence:  p,
		publisher:    publisher,
		stateMachine: NewStateMachine(p, logger),
		retryPolicy:  retryPolicy,
		logger:       logger.With("module", "executor"),
	}
}

// HandleStepAvailable runs one attempt of the step named by the message.
// Messages for executions or journeys that can no longer advance are
// dropped, not failed, so redeliveries of stale work are harmless.
func (e *Executor) HandleStepAvailable(ctx context.Context, evt events.StepAvailable) error {
	execution, err := e.persistence.Executions().GetByID(ctx, evt.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			e.logger.WarnContext(ctx, "Dropping step for unknown execution", "execution_id", evt.ExecutionID)

			return nil
		}

		return err
	}

	if execution.Terminal() {
		e.logger.DebugContext(ctx, "Dropping step for terminal execution",
			"execution_id", execution.ID, "status", execution.Status)

		return nil
	}

	status, err := e.journeyStatus(ctx, execution)
	if err != nil {
		return err
	}

	switch status {
	case models.JourneyStatusPaused:
		return e.parkForPause(ctx, execution, evt.StepID, evt.State)
	case models.JourneyStatusArchived:
		return e.cancelBySystem(ctx, execution.ID)
	}

	return e.runStep(ctx, execution, evt.StepID, evt.State)
}

// journeyStatus resolves the owning journey's status for an in-flight hop.
// A deleted journey is reported as archived so the hop cancels the
// execution the same way.
func (e *Executor) journeyStatus(ctx context.Context, execution *models.Execution) (models.JourneyStatus, error) {
	journey, err := e.persistence.Journeys().GetByID(ctx, execution.OrganizationID, execution.JourneyID)
	if err != nil {
		if persistence.IsJourneyNotFound(err) {
			e.logger.WarnContext(ctx, "Journey missing, treating as archived",
				"execution_id", execution.ID, "journey_id", execution.JourneyID)

			return models.JourneyStatusArchived, nil
		}

		return "", err
	}

	return journey.Status, nil
}

// parkForPause records a pending attempt at the hop's target step so the
// staleness sweep can re-emit it once the journey resumes. Attempts stays
// zero: the step never started.
func (e *Executor) parkForPause(ctx context.Context, execution *models.Execution, stepID string, state map[string]any) error {
	if prev, err := e.persistence.Executions().LatestStep(ctx, execution.ID, stepID); err == nil && prev.Status == models.StepExecutionStatusPending {
		return nil
	}

	stepExec := &models.StepExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		StepID:      stepID,
		Status:      models.StepExecutionStatusPending,
		Result:      state,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
		return fmt.Errorf("failed to park step for paused journey: %w", err)
	}

	e.logger.DebugContext(ctx, "Journey paused, step parked",
		"execution_id", execution.ID, "step_id", stepID)

	return nil
}

func (e *Executor) cancelBySystem(ctx context.Context, executionID string) error {
	out, err := e.stateMachine.Cancel(ctx, executionID, "system")
	if err != nil {
		if errors.Is(err, models.ErrInvalidState) {
			return nil
		}

		return err
	}

	return e.publishAll(ctx, out)
}

func (e *Executor) runStep(ctx context.Context, execution *models.Execution, stepID string, state map[string]any) error {
	version, err := e.persistence.Versions().GetByID(ctx, execution.VersionID)
	if err != nil {
		return fmt.Errorf("failed to load version %s: %w", execution.VersionID, err)
	}

	step := version.Definition.StepByID(stepID)
	if step == nil {
		return e.failExecution(ctx, execution, nil,
			fmt.Errorf("%w: step %s not in version %s", models.ErrGraphIntegrity, stepID, version.ID))
	}

	attempts := 1

	if prev, err := e.persistence.Executions().LatestStep(ctx, execution.ID, stepID); err == nil {
		switch {
		// Published graphs are acyclic, so a step with a live or settled
		// attempt receiving another hop is a duplicate delivery, not a
		// revisit. Skipped rows with zero attempts are pause parks and
		// still need their run.
		case prev.Status == models.StepExecutionStatusRunning,
			prev.Status == models.StepExecutionStatusCompleted,
			prev.Status == models.StepExecutionStatusSkipped && prev.Attempts > 0,
			prev.Status == models.StepExecutionStatusPending && prev.Attempts > 0:
			e.logger.DebugContext(ctx, "Dropping duplicate hop for attempted step",
				"execution_id", execution.ID, "step_id", stepID, "status", prev.Status)

			return nil
		case prev.Status == models.StepExecutionStatusFailed:
			attempts = prev.Attempts + 1
		}
	}

	stepExec := &models.StepExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		StepID:      stepID,
		Status:      models.StepExecutionStatusRunning,
		Attempts:    attempts,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
		return fmt.Errorf("failed to record step execution: %w", err)
	}

	execution.CurrentStepID = stepID
	if err := e.persistence.Executions().Update(ctx, execution); err != nil {
		return fmt.Errorf("failed to update execution position: %w", err)
	}

	outcome, parked, err := e.interpret(ctx, execution, step, stepExec, state)
	if err != nil {
		if IsGraphIntegrityError(err) || errors.Is(err, models.ErrUnknownStepType) {
			return e.failExecution(ctx, execution, stepExec, err)
		}

		return e.handleStepFailure(ctx, execution, stepExec, err)
	}

	if parked {
		return nil
	}

	out, err := e.stateMachine.Advance(ctx, execution, version, stepExec, outcome)
	if err != nil {
		if IsGraphIntegrityError(err) {
			return e.failExecution(ctx, execution, stepExec, err)
		}

		return err
	}

	return e.publishAll(ctx, out)
}

// interpret dispatches on step type. A true parked return means the step
// stays running and advancement happens on a later ResumeStep or matching
// event; the outcome is ignored in that case.
func (e *Executor) interpret(ctx context.Context, execution *models.Execution, step *models.Step, stepExec *models.StepExecution, state map[string]any) (Outcome, bool, error) {
	switch step.Type {
	case models.StepTypeTrigger:
		// Entry marker only; it records that the journey started here.
		return Outcome{Status: models.StepExecutionStatusSkipped, Result: state}, false, nil
	case models.StepTypeAction:
		return e.interpretAction(ctx, execution, step, state)
	case models.StepTypeCondition:
		return e.interpretCondition(ctx, execution, step, state)
	case models.StepTypeDelay:
		parked, err := e.interpretDelay(ctx, execution, step, stepExec)
		return Outcome{Status: models.StepExecutionStatusCompleted, Result: state}, parked, err
	case models.StepTypeSplit:
		// Branch selection is deterministic per execution; see Advance.
		return Outcome{Status: models.StepExecutionStatusCompleted, Result: state}, false, nil
	default:
		return Outcome{}, false, fmt.Errorf("%w: %s", models.ErrUnknownStepType, step.Type)
	}
}

// interpretAction enqueues the side-effect command. The step completes once
// the command is durably published; delivery failures surface later as
// feedback events and are never rolled back into the execution.
func (e *Executor) interpretAction(ctx context.Context, execution *models.Execution, step *models.Step, state map[string]any) (Outcome, bool, error) {
	config, err := models.DecodeActionConfig(step.Config)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("%w: %s", models.ErrGraphIntegrity, err)
	}

	command, err := e.buildCommand(execution, config)
	if err != nil {
		return Outcome{}, false, err
	}

	if err := e.publisher.Publish(ctx, execution.ContactID, command); err != nil {
		return Outcome{}, false, fmt.Errorf("failed to enqueue %s command: %w", config.Kind, err)
	}

	result := copyState(state)
	result["action"] = string(config.Kind)

	return Outcome{Status: models.StepExecutionStatusCompleted, Result: result}, false, nil
}

func (e *Executor) buildCommand(execution *models.Execution, config *models.ActionConfig) (eventbus.Event, error) {
	switch config.Kind {
	case models.ActionKindSendMessage:
		return events.SendMessage{
			BaseEvent:   events.NewBaseEvent(events.SendMessageCommand, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			TemplateID:  config.TemplateID,
			Channel:     config.Channel,
		}, nil
	case models.ActionKindAwardPoints:
		return events.AwardPoints{
			BaseEvent:   events.NewBaseEvent(events.AwardPointsCommand, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			Points:      config.Points,
		}, nil
	case models.ActionKindCallWebhook:
		return events.CallWebhook{
			BaseEvent:   events.NewBaseEvent(events.CallWebhookCommand, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			URL:         config.URL,
		}, nil
	case models.ActionKindEnrollInSequence:
		return events.EnrollInSequence{
			BaseEvent:   events.NewBaseEvent(events.EnrollInSequenceCommand, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			SequenceID:  config.SequenceID,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown action kind %q", models.ErrGraphIntegrity, config.Kind)
	}
}

func (e *Executor) interpretCondition(_ context.Context, _ *models.Execution, step *models.Step, state map[string]any) (Outcome, bool, error) {
	config, err := models.DecodeConditionConfig(step.Config)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("%w: %s", models.ErrGraphIntegrity, err)
	}

	matched, err := evaluateCondition(config, state)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("%w: %s", models.ErrGraphIntegrity, err)
	}

	branch := models.ConnectionLabelNo
	if matched {
		branch = models.ConnectionLabelYes
	}

	result := copyState(state)
	result["outcome"] = branch

	return Outcome{Status: models.StepExecutionStatusCompleted, Branch: branch, Result: result}, false, nil
}

// interpretDelay parks the step. Duration and time-of-day modes record a
// resume schedule the scheduler redelivers; until_event mode waits for the
// matching contact event with no target time at all.
func (e *Executor) interpretDelay(ctx context.Context, execution *models.Execution, step *models.Step, stepExec *models.StepExecution) (bool, error) {
	config, err := models.DecodeDelayConfig(step.Config)
	if err != nil {
		return false, fmt.Errorf("%w: %s", models.ErrGraphIntegrity, err)
	}

	resumeAt, scheduled, err := config.ResumeAt(time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("%w: %s", models.ErrGraphIntegrity, err)
	}

	if !scheduled {
		e.logger.DebugContext(ctx, "Step waiting on event",
			"execution_id", execution.ID, "step_id", step.ID, "event_type", config.EventType)

		return true, nil
	}

	schedule := &models.ResumeSchedule{
		ID:             uuid.New().String(),
		ExecutionID:    execution.ID,
		StepID:         stepExec.StepID,
		OrganizationID: execution.OrganizationID,
		ResumeAt:       resumeAt,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.persistence.Schedules().Save(ctx, schedule); err != nil {
		return false, fmt.Errorf("failed to save resume schedule: %w", err)
	}

	e.logger.DebugContext(ctx, "Step parked until resume time",
		"execution_id", execution.ID, "step_id", step.ID, "resume_at", resumeAt)

	return true, nil
}

// HandleResume advances a parked delay step or re-attempts a step whose
// last attempt failed. Anything else is a duplicate redelivery and is
// dropped.
func (e *Executor) HandleResume(ctx context.Context, evt events.ResumeStep) error {
	execution, err := e.persistence.Executions().GetByID(ctx, evt.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil
		}

		return err
	}

	if execution.Terminal() {
		return nil
	}

	status, err := e.journeyStatus(ctx, execution)
	if err != nil {
		return err
	}

	if status == models.JourneyStatusArchived {
		return e.cancelBySystem(ctx, execution.ID)
	}

	stepExec, err := e.persistence.Executions().LatestStep(ctx, execution.ID, evt.StepID)
	if err != nil {
		if persistence.IsStepExecutionNotFound(err) {
			e.logger.WarnContext(ctx, "Resume for step with no attempts",
				"execution_id", evt.ExecutionID, "step_id", evt.StepID)

			return nil
		}

		return err
	}

	// A paused journey converts the resume into a parked pending attempt;
	// the sweep redelivers it after the journey resumes.
	if status == models.JourneyStatusPaused {
		if stepExec.Status == models.StepExecutionStatusRunning || stepExec.Status == models.StepExecutionStatusFailed {
			stepExec.Status = models.StepExecutionStatusPending

			return e.persistence.Executions().SaveStep(ctx, stepExec)
		}

		return nil
	}

	switch stepExec.Status {
	case models.StepExecutionStatusRunning:
		return e.finishParkedStep(ctx, execution, stepExec, nil)
	case models.StepExecutionStatusPending:
		// Attempts zero means the step never started before the journey
		// paused; run it fresh. Otherwise it was mid-flight and can
		// advance.
		if stepExec.Attempts == 0 {
			now := time.Now().UTC()
			stepExec.Status = models.StepExecutionStatusSkipped
			stepExec.CompletedAt = &now

			if err := e.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
				return err
			}

			return e.runStep(ctx, execution, evt.StepID, stepExec.Result)
		}

		return e.finishParkedStep(ctx, execution, stepExec, nil)
	case models.StepExecutionStatusFailed:
		return e.runStep(ctx, execution, evt.StepID, stepExec.Result)
	default:
		e.logger.DebugContext(ctx, "Dropping resume for settled step",
			"execution_id", execution.ID, "step_id", evt.StepID, "status", stepExec.Status)

		return nil
	}
}

func (e *Executor) finishParkedStep(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution, extra map[string]any) error {
	version, err := e.persistence.Versions().GetByID(ctx, execution.VersionID)
	if err != nil {
		return fmt.Errorf("failed to load version %s: %w", execution.VersionID, err)
	}

	result := copyState(stepExec.Result)
	for k, v := range extra {
		result[k] = v
	}

	out, err := e.stateMachine.Advance(ctx, execution, version, stepExec, Outcome{
		Status: models.StepExecutionStatusCompleted,
		Result: result,
	})
	if err != nil {
		if IsGraphIntegrityError(err) {
			return e.failExecution(ctx, execution, stepExec, err)
		}

		return err
	}

	return e.publishAll(ctx, out)
}

// ResumeWaiting advances executions parked on an until_event delay matching
// the incoming contact event.
func (e *Executor) ResumeWaiting(ctx context.Context, organizationID, contactID string, eventType string, payload map[string]any) error {
	executions, err := e.persistence.Executions().ActiveByContact(ctx, organizationID, contactID)
	if err != nil {
		return err
	}

	for _, execution := range executions {
		if execution.CurrentStepID == "" {
			continue
		}

		status, err := e.journeyStatus(ctx, execution)
		if err != nil {
			return err
		}

		version, err := e.persistence.Versions().GetByID(ctx, execution.VersionID)
		if err != nil {
			return err
		}

		step := version.Definition.StepByID(execution.CurrentStepID)
		if step == nil || step.Type != models.StepTypeDelay {
			continue
		}

		config, err := models.DecodeDelayConfig(step.Config)
		if err != nil || config.Mode != models.DelayModeUntilEvent || config.EventType != eventType {
			continue
		}

		stepExec, err := e.persistence.Executions().LatestStep(ctx, execution.ID, step.ID)
		if err != nil || stepExec.Status != models.StepExecutionStatusRunning {
			continue
		}

		// The awaited event arrived while the journey was paused; park the
		// step so the sweep resumes it after the journey resumes.
		if status == models.JourneyStatusPaused {
			stepExec.Status = models.StepExecutionStatusPending
			if err := e.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
				return err
			}

			continue
		}

		if status == models.JourneyStatusArchived {
			if err := e.cancelBySystem(ctx, execution.ID); err != nil {
				return err
			}

			continue
		}

		e.logger.InfoContext(ctx, "Resuming execution on awaited event",
			"execution_id", execution.ID, "step_id", step.ID, "event_type", eventType)

		if err := e.finishParkedStep(ctx, execution, stepExec, payload); err != nil {
			return err
		}
	}

	return nil
}

// CancelExecution cancels on behalf of an operator, publishing the
// lifecycle event.
func (e *Executor) CancelExecution(ctx context.Context, executionID, canceledBy string) error {
	out, err := e.stateMachine.Cancel(ctx, executionID, canceledBy)
	if err != nil {
		return err
	}

	return e.publishAll(ctx, out)
}

// handleStepFailure records the failed attempt, then either schedules a
// backed-off retry or fails the execution when attempts are exhausted.
func (e *Executor) handleStepFailure(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution, cause error) error {
	now := time.Now().UTC()
	stepExec.Status = models.StepExecutionStatusFailed
	stepExec.Error = cause.Error()
	stepExec.CompletedAt = &now

	if err := e.persistence.Executions().SaveStep(ctx, stepExec); err != nil {
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}

	if !e.retryPolicy.ShouldRetry(stepExec.Attempts) {
		e.logger.ErrorContext(ctx, "Step attempts exhausted",
			"execution_id", execution.ID, "step_id", stepExec.StepID,
			"attempts", stepExec.Attempts, "error", cause)

		out, err := e.stateMachine.Fail(ctx, execution, stepExec, cause)
		if err != nil {
			return err
		}

		return e.publishAll(ctx, out)
	}

	delay := e.retryPolicy.NextDelay(stepExec.Attempts)
	schedule := &models.ResumeSchedule{
		ID:             uuid.New().String(),
		ExecutionID:    execution.ID,
		StepID:         stepExec.StepID,
		OrganizationID: execution.OrganizationID,
		ResumeAt:       now.Add(delay),
		CreatedAt:      now,
	}
	if err := e.persistence.Schedules().Save(ctx, schedule); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	e.logger.WarnContext(ctx, "Step attempt failed, retry scheduled",
		"execution_id", execution.ID, "step_id", stepExec.StepID,
		"attempt", stepExec.Attempts, "retry_in", delay, "error", cause)

	return nil
}

func (e *Executor) failExecution(ctx context.Context, execution *models.Execution, stepExec *models.StepExecution, cause error) error {
	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID, "error", cause)

	out, err := e.stateMachine.Fail(ctx, execution, stepExec, cause)
	if err != nil {
		return err
	}

	return e.publishAll(ctx, out)
}

func (e *Executor) publishAll(ctx context.Context, out []eventbus.Event) error {
	for _, event := range out {
		if err := e.publisher.Publish(ctx, "", event); err != nil {
			return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
		}
	}

	return nil
}

func copyState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state)+1)
	for k, v := range state {
		out[k] = v
	}

	return out
}
