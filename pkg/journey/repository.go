// Package journey provides draft journey management and publication into
// immutable versions.
package journey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// Repository manages draft journeys and their steps, triggers and
// connections. Graph mutations are legal only while the journey is in draft
// status; published versions are frozen and never touched from here.
type Repository struct {
	persistence persistence.Persistence
}

func NewRepository(p persistence.Persistence) *Repository {
	return &Repository{persistence: p}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) List(ctx context.Context, organizationID string, page models.PageRequest) ([]*models.Journey, int, error) {
	return r.persistence.Journeys().List(ctx, organizationID, page)
}

func (r *Repository) FetchByID(ctx context.Context, organizationID, id string) (*models.Journey, error) {
	return r.persistence.Journeys().GetByID(ctx, organizationID, id)
}

func (r *Repository) Create(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	journey.CreatedAt = now
	journey.UpdatedAt = now
	journey.Status = models.JourneyStatusDraft

	err := r.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, err
	}

	return journey, nil
}

func (r *Repository) Update(ctx context.Context, organizationID, id string, name string) (*models.Journey, error) {
	journey, err := r.editable(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	journey.Name = name
	journey.UpdatedAt = time.Now().UTC()

	err = r.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, err
	}

	return journey, nil
}

// Delete removes a draft journey. Journeys that have ever been published are
// retained for audit and can only be archived.
func (r *Repository) Delete(ctx context.Context, organizationID, id string) error {
	journey, err := r.persistence.Journeys().GetByID(ctx, organizationID, id)
	if err != nil {
		return err
	}

	if journey.Status != models.JourneyStatusDraft {
		return fmt.Errorf("%w: cannot delete journey with status %s", models.ErrInvalidState, journey.Status)
	}

	return r.persistence.Journeys().Delete(ctx, organizationID, id)
}

// AddStep appends a step to the draft graph after validating its config
// against the per-type schema.
func (r *Repository) AddStep(ctx context.Context, organizationID, journeyID string, step *models.Step) (*models.Step, error) {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateStepConfig(step.Type, step.Config); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	step.JourneyID = journey.ID
	journey.Steps = append(journey.Steps, step)
	journey.UpdatedAt = time.Now().UTC()

	err = r.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, err
	}

	return step, nil
}

func (r *Repository) UpdateStep(ctx context.Context, organizationID, journeyID string, step *models.Step) (*models.Step, error) {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateStepConfig(step.Type, step.Config); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	for i, existing := range journey.Steps {
		if existing.ID == step.ID {
			step.JourneyID = journey.ID
			journey.Steps[i] = step
			journey.UpdatedAt = time.Now().UTC()

			return step, r.persistence.Journeys().Save(ctx, journey)
		}
	}

	return nil, fmt.Errorf("step %s: %w", step.ID, persistence.ErrJourneyNotFound)
}

// RemoveStep deletes a draft step and every connection touching it.
func (r *Repository) RemoveStep(ctx context.Context, organizationID, journeyID, stepID string) error {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return err
	}

	steps := journey.Steps[:0]

	for _, step := range journey.Steps {
		if step.ID != stepID {
			steps = append(steps, step)
		}
	}

	journey.Steps = steps

	connections := journey.Connections[:0]

	for _, conn := range journey.Connections {
		if conn.FromStepID != stepID && conn.ToStepID != stepID {
			connections = append(connections, conn)
		}
	}

	journey.Connections = connections
	journey.UpdatedAt = time.Now().UTC()

	return r.persistence.Journeys().Save(ctx, journey)
}

func (r *Repository) AddConnection(ctx context.Context, organizationID, journeyID string, conn *models.Connection) (*models.Connection, error) {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return nil, err
	}

	draft := models.Graph{Steps: journey.Steps, Connections: journey.Connections}
	if draft.StepByID(conn.FromStepID) == nil || draft.StepByID(conn.ToStepID) == nil {
		return nil, fmt.Errorf("%w: connection references unknown step", models.ErrValidation)
	}

	if conn.ID == "" {
		conn.ID = uuid.New().String()
	}

	journey.Connections = append(journey.Connections, conn)
	journey.UpdatedAt = time.Now().UTC()

	err = r.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (r *Repository) RemoveConnection(ctx context.Context, organizationID, journeyID, connectionID string) error {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return err
	}

	connections := journey.Connections[:0]

	for _, conn := range journey.Connections {
		if conn.ID != connectionID {
			connections = append(connections, conn)
		}
	}

	journey.Connections = connections
	journey.UpdatedAt = time.Now().UTC()

	return r.persistence.Journeys().Save(ctx, journey)
}

func (r *Repository) AddTrigger(ctx context.Context, organizationID, journeyID string, trigger *models.Trigger) (*models.Trigger, error) {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return nil, err
	}

	if err := models.ValidateTriggerConfig(trigger.Type, trigger.Config); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	trigger.JourneyID = journey.ID
	journey.Triggers = append(journey.Triggers, trigger)
	journey.UpdatedAt = time.Now().UTC()

	err = r.persistence.Journeys().Save(ctx, journey)
	if err != nil {
		return nil, err
	}

	return trigger, nil
}

func (r *Repository) RemoveTrigger(ctx context.Context, organizationID, journeyID, triggerID string) error {
	journey, err := r.editable(ctx, organizationID, journeyID)
	if err != nil {
		return err
	}

	triggers := journey.Triggers[:0]

	for _, trigger := range journey.Triggers {
		if trigger.ID != triggerID {
			triggers = append(triggers, trigger)
		}
	}

	journey.Triggers = triggers
	journey.UpdatedAt = time.Now().UTC()

	return r.persistence.Journeys().Save(ctx, journey)
}

func (r *Repository) editable(ctx context.Context, organizationID, journeyID string) (*models.Journey, error) {
	journey, err := r.persistence.Journeys().GetByID(ctx, organizationID, journeyID)
	if err != nil {
		return nil, err
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, models.ErrJourneyArchived
	}

	if !journey.Editable() {
		return nil, fmt.Errorf("%w: journey %s has status %s, graph edits require draft", models.ErrInvalidState, journeyID, journey.Status)
	}

	return journey, nil
}
