// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"
	"github.com/voyage-hq/voyage/pkg/models"
)

// CreateTestStep creates a test Step with default values that can be overridden.
func CreateTestStep(overrides ...func(*models.Step)) *models.Step {
	step := &models.Step{
		ID:   uuid.New().String(),
		Type: models.StepTypeAction,
		Config: map[string]any{
			"kind":        "send_message",
			"channel":     "email",
			"template_id": "tpl-welcome",
		},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithStepID sets the step ID.
func WithStepID(id string) func(*models.Step) {
	return func(s *models.Step) {
		s.ID = id
	}
}

// WithStepType sets the step type.
func WithStepType(stepType models.StepType) func(*models.Step) {
	return func(s *models.Step) {
		s.Type = stepType
	}
}

// WithStepConfig sets the step configuration.
func WithStepConfig(config map[string]any) func(*models.Step) {
	return func(s *models.Step) {
		s.Config = config
	}
}

// CreateTestJourney creates a draft journey with no graph.
func CreateTestJourney(overrides ...func(*models.Journey)) *models.Journey {
	journey := &models.Journey{
		ID:             uuid.New().String(),
		OrganizationID: "org-test",
		Name:           "Test Journey",
		Status:         models.JourneyStatusDraft,
		CreatedBy:      "test-user",
		Steps:          []*models.Step{},
		Triggers:       []*models.Trigger{},
		Connections:    []*models.Connection{},
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(journey)
	}

	return journey
}

// WithJourneyStatus sets the journey status.
func WithJourneyStatus(status models.JourneyStatus) func(*models.Journey) {
	return func(j *models.Journey) {
		j.Status = status
	}
}

// WithOrganization sets the journey organization.
func WithOrganization(orgID string) func(*models.Journey) {
	return func(j *models.Journey) {
		j.OrganizationID = orgID
	}
}

// CreateTestJourneyWithGraph creates a draft journey holding a minimal valid
// graph: an event trigger step connected to a send_message action.
func CreateTestJourneyWithGraph() *models.Journey {
	journey := CreateTestJourney()

	triggerStep := CreateTestStep(
		WithStepID("trigger-1"),
		WithStepType(models.StepTypeTrigger),
		WithStepConfig(map[string]any{}),
	)
	actionStep := CreateTestStep(WithStepID("action-1"))

	for _, step := range []*models.Step{triggerStep, actionStep} {
		step.JourneyID = journey.ID
	}

	journey.Steps = []*models.Step{triggerStep, actionStep}
	journey.Connections = []*models.Connection{
		CreateTestConnection("trigger-1", "action-1"),
	}
	journey.Triggers = []*models.Trigger{
		{
			ID:        uuid.New().String(),
			JourneyID: journey.ID,
			Type:      models.TriggerTypeEvent,
			Config:    map[string]any{"event_name": "contact.created"},
		},
	}

	return journey
}

// CreateTestConnection creates an unlabeled connection between two steps.
func CreateTestConnection(fromStepID, toStepID string) *models.Connection {
	return &models.Connection{
		ID:         uuid.New().String(),
		FromStepID: fromStepID,
		ToStepID:   toStepID,
	}
}

// CreateTestVersion snapshots the journey graph into a published version.
func CreateTestVersion(journey *models.Journey, number int) *models.JourneyVersion {
	return &models.JourneyVersion{
		ID:             uuid.New().String(),
		JourneyID:      journey.ID,
		OrganizationID: journey.OrganizationID,
		VersionNumber:  number,
		Definition: models.Graph{
			Steps:       journey.Steps,
			Connections: journey.Connections,
		},
		PublishedAt: time.Now().UTC(),
	}
}

// CreateTestExecution creates an active execution positioned at the given step.
func CreateTestExecution(version *models.JourneyVersion, contactID, currentStepID string) *models.Execution {
	return &models.Execution{
		ID:             uuid.New().String(),
		JourneyID:      version.JourneyID,
		VersionID:      version.ID,
		OrganizationID: version.OrganizationID,
		ContactID:      contactID,
		Status:         models.ExecutionStatusActive,
		CurrentStepID:  currentStepID,
		StartedAt:      time.Now().UTC(),
	}
}
