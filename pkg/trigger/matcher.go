// Package trigger matches incoming contact events against journey triggers
// and starts executions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// Event is the normalized form the matcher evaluates: the trigger category
// it belongs to, the concrete event name, and the flattened payload.
type Event struct {
	Category       models.TriggerType
	Name           string
	OrganizationID string
	ContactID      string
	Payload        map[string]any
	Timestamp      time.Time
}

// Matcher maps an incoming event to the set of journeys eligible to start
// for a contact, creating at most one execution per (journey, event).
type Matcher struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

func NewMatcher(p persistence.Persistence, logger *slog.Logger) *Matcher {
	return &Matcher{
		persistence: p,
		logger:      logger.With("module", "trigger_matcher"),
	}
}

// Match evaluates the event against the organization's triggers and creates
// executions for every matching active journey. It returns the engine events
// to publish: one ExecutionStarted plus one StepAvailable per entry step for
// each created execution. Skips are no-ops, never errors.
func (m *Matcher) Match(ctx context.Context, event Event) ([]eventbus.Event, error) {
	candidates, err := m.persistence.Journeys().ActiveTriggersByType(ctx, event.OrganizationID, event.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate triggers: %w", err)
	}

	var out []eventbus.Event

	// First match per journey wins; later triggers matching the same event
	// are no-ops so one event never starts duplicate runs.
	started := make(map[string]bool)

	for _, candidate := range candidates {
		if !candidate.EventMatchable() {
			continue
		}

		if started[candidate.JourneyID] {
			continue
		}

		matched, err := m.evaluate(candidate, event)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping trigger with malformed config",
				"trigger_id", candidate.ID,
				"journey_id", candidate.JourneyID,
				"error", err)

			continue
		}

		if !matched {
			continue
		}

		startEvents, err := m.startExecution(ctx, candidate, event)
		if err != nil {
			return nil, err
		}

		if startEvents == nil {
			startEvents, err = m.recoverStalledStart(ctx, candidate.JourneyID, event)
			if err != nil {
				return nil, err
			}
		}

		if startEvents != nil {
			started[candidate.JourneyID] = true

			out = append(out, startEvents...)
		}
	}

	return out, nil
}

// StartManual starts an execution for a journey with a manual trigger,
// bypassing event matching. Used by the management API.
func (m *Matcher) StartManual(ctx context.Context, organizationID, journeyID, contactID string) ([]eventbus.Event, error) {
	trigger := &models.Trigger{
		ID:        uuid.New().String(),
		JourneyID: journeyID,
		Type:      models.TriggerTypeManual,
	}

	event := Event{
		Category:       models.TriggerTypeManual,
		OrganizationID: organizationID,
		ContactID:      contactID,
		Timestamp:      time.Now().UTC(),
	}

	startEvents, err := m.startExecution(ctx, trigger, event)
	if err != nil {
		return nil, err
	}

	if startEvents == nil {
		return nil, fmt.Errorf("%w: journey %s cannot start an execution for contact %s", models.ErrInvalidState, journeyID, contactID)
	}

	return startEvents, nil
}

// StartScheduled starts executions for a scheduled trigger's configured
// contacts when its cron occurrence fires. The journey-level gates and the
// conditional insert apply per contact, so a contact already running the
// journey is a skip, not an error.
func (m *Matcher) StartScheduled(ctx context.Context, journey *models.Journey, trigger *models.Trigger, firedAt time.Time) ([]eventbus.Event, error) {
	config, err := models.DecodeScheduledTriggerConfig(trigger.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scheduled trigger config: %w", err)
	}

	var out []eventbus.Event

	for _, contactID := range config.ContactIDs {
		event := Event{
			Category:       models.TriggerTypeScheduled,
			Name:           "schedule.fired",
			OrganizationID: journey.OrganizationID,
			ContactID:      contactID,
			Payload:        map[string]any{"fired_at": firedAt.Format(time.RFC3339)},
			Timestamp:      firedAt,
		}

		startEvents, err := m.startExecution(ctx, trigger, event)
		if err != nil {
			return nil, err
		}

		out = append(out, startEvents...)
	}

	return out, nil
}

// recoverStalledStart re-emits the entry hand-off for an active execution
// that has no step attempts. The state arises when the start events were lost
// after the conditional insert won; redelivery of the triggering event lands
// here because the insert now reports an existing active execution. The
// executor drops duplicate hops, so re-emitting is safe when the original
// hand-off is still in flight.
func (m *Matcher) recoverStalledStart(ctx context.Context, journeyID string, event Event) ([]eventbus.Event, error) {
	execution, err := m.persistence.Executions().ActiveByJourneyAndContact(ctx, journeyID, event.ContactID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if execution.CurrentStepID != "" {
		return nil, nil
	}

	steps, err := m.persistence.Executions().StepsByExecution(ctx, execution.ID)
	if err != nil {
		return nil, err
	}

	if len(steps) > 0 {
		return nil, nil
	}

	version, err := m.persistence.Versions().GetByID(ctx, execution.VersionID)
	if err != nil {
		return nil, err
	}

	m.logger.WarnContext(ctx, "Re-emitting entry steps for execution with no attempts",
		"execution_id", execution.ID, "journey_id", journeyID, "contact_id", event.ContactID)

	var out []eventbus.Event

	for _, entry := range version.Definition.EntrySteps() {
		out = append(out, events.StepAvailable{
			BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			StepID:      entry.ID,
			State:       event.Payload,
		})
	}

	return out, nil
}

// startExecution applies the journey-level gates and performs the
// conditional insert. A nil, nil return means the start was skipped.
func (m *Matcher) startExecution(ctx context.Context, trigger *models.Trigger, event Event) ([]eventbus.Event, error) {
	logger := m.logger.With("journey_id", trigger.JourneyID, "contact_id", event.ContactID)

	journey, err := m.persistence.Journeys().GetByID(ctx, event.OrganizationID, trigger.JourneyID)
	if err != nil {
		if persistence.IsJourneyNotFound(err) {
			logger.WarnContext(ctx, "Trigger references missing journey", "trigger_id", trigger.ID)

			return nil, nil
		}

		return nil, err
	}

	if !journey.AcceptsExecutions() {
		return nil, nil
	}

	version, err := m.persistence.Versions().LatestByJourney(ctx, journey.ID)
	if err != nil {
		if persistence.IsVersionNotFound(err) {
			// Active but never published is a data-integrity anomaly, not
			// a fatal error.
			logger.WarnContext(ctx, "Active journey has no published version")

			return nil, nil
		}

		return nil, err
	}

	execution := &models.Execution{
		ID:             uuid.New().String(),
		JourneyID:      journey.ID,
		VersionID:      version.ID,
		OrganizationID: journey.OrganizationID,
		ContactID:      event.ContactID,
		Status:         models.ExecutionStatusActive,
		StartedAt:      time.Now().UTC(),
	}

	// The conditional insert also resolves races between concurrent
	// triggers for the same contact: whichever insert wins, the loser's
	// create is a no-op.
	created, err := m.persistence.Executions().CreateIfNoneActive(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if !created {
		logger.DebugContext(ctx, "Active execution already exists, skipping start")

		return nil, nil
	}

	logger.InfoContext(ctx, "Started execution",
		"execution_id", execution.ID,
		"version_id", version.ID,
		"trigger_type", trigger.Type)

	base := events.NewBaseEvent(events.ExecutionStartedEvent, execution.OrganizationID, execution.ContactID)
	out := []eventbus.Event{
		events.ExecutionStarted{
			BaseEvent:   base,
			ExecutionID: execution.ID,
			JourneyID:   execution.JourneyID,
			VersionID:   execution.VersionID,
		},
	}

	for _, entry := range version.Definition.EntrySteps() {
		out = append(out, events.StepAvailable{
			BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, execution.OrganizationID, execution.ContactID),
			ExecutionID: execution.ID,
			StepID:      entry.ID,
			State:       event.Payload,
		})
	}

	return out, nil
}
