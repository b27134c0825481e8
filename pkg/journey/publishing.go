package journey

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
)

// PublishingService freezes draft journeys into immutable versions and
// manages the active/paused/archived lifecycle.
type PublishingService struct {
	persistence persistence.Persistence
}

func NewPublishingService(p persistence.Persistence) *PublishingService {
	return &PublishingService{persistence: p}
}

// Publish validates the draft graph, snapshots it as the next
// JourneyVersion and flips the journey to active. Executions started on
// earlier versions keep running against their own frozen snapshots.
func (s *PublishingService) Publish(ctx context.Context, organizationID, journeyID string) (*models.JourneyVersion, error) {
	journey, err := s.persistence.Journeys().GetByID(ctx, organizationID, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get journey for publishing: %w", err)
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, models.ErrJourneyArchived
	}

	if journey.Status != models.JourneyStatusDraft {
		return nil, fmt.Errorf("%w: journey %s has status %s, publish requires draft", models.ErrInvalidState, journeyID, journey.Status)
	}

	if err := ValidateGraph(journey); err != nil {
		return nil, err
	}

	maxVersion, err := s.persistence.Versions().MaxVersionNumber(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve latest version number: %w", err)
	}

	version := s.freeze(journey, maxVersion+1)

	if err := s.persistence.Versions().Save(ctx, version); err != nil {
		return nil, fmt.Errorf("failed to save journey version: %w", err)
	}

	journey.Status = models.JourneyStatusActive
	journey.UpdatedAt = time.Now().UTC()

	if err := s.persistence.Journeys().Save(ctx, journey); err != nil {
		return nil, fmt.Errorf("failed to activate journey after publish: %w", err)
	}

	return version, nil
}

// Pause stops new executions from starting and in-flight executions from
// advancing. Running executions keep their position and stay active.
func (s *PublishingService) Pause(ctx context.Context, organizationID, journeyID string) error {
	return s.transition(ctx, organizationID, journeyID, models.JourneyStatusActive, models.JourneyStatusPaused)
}

// Resume re-enables intake and advancement for a paused journey.
func (s *PublishingService) Resume(ctx context.Context, organizationID, journeyID string) error {
	return s.transition(ctx, organizationID, journeyID, models.JourneyStatusPaused, models.JourneyStatusActive)
}

// Archive is one-way; archived journeys reject all further start and advance
// requests.
func (s *PublishingService) Archive(ctx context.Context, organizationID, journeyID string) error {
	journey, err := s.persistence.Journeys().GetByID(ctx, organizationID, journeyID)
	if err != nil {
		return err
	}

	if journey.Status == models.JourneyStatusArchived {
		return models.ErrJourneyArchived
	}

	now := time.Now().UTC()
	journey.Status = models.JourneyStatusArchived
	journey.ArchivedAt = &now
	journey.UpdatedAt = now

	return s.persistence.Journeys().Save(ctx, journey)
}

// LatestVersion resolves the newest published version of a journey.
func (s *PublishingService) LatestVersion(ctx context.Context, journeyID string) (*models.JourneyVersion, error) {
	return s.persistence.Versions().LatestByJourney(ctx, journeyID)
}

func (s *PublishingService) transition(ctx context.Context, organizationID, journeyID string, from, to models.JourneyStatus) error {
	journey, err := s.persistence.Journeys().GetByID(ctx, organizationID, journeyID)
	if err != nil {
		return err
	}

	if journey.Status == models.JourneyStatusArchived {
		return models.ErrJourneyArchived
	}

	if journey.Status != from {
		return fmt.Errorf("%w: journey %s has status %s, expected %s", models.ErrInvalidState, journeyID, journey.Status, from)
	}

	journey.Status = to
	journey.UpdatedAt = time.Now().UTC()

	return s.persistence.Journeys().Save(ctx, journey)
}

// freeze creates the immutable deep copy owned by the new version. Step and
// connection IDs are kept so executions can reference them consistently.
func (s *PublishingService) freeze(journey *models.Journey, versionNumber int) *models.JourneyVersion {
	versionID := uuid.New().String()

	steps := make([]*models.Step, len(journey.Steps))
	for i, step := range journey.Steps {
		steps[i] = &models.Step{
			ID:        step.ID,
			JourneyID: step.JourneyID,
			VersionID: versionID,
			Type:      step.Type,
			Config:    copyMap(step.Config),
			PositionX: step.PositionX,
			PositionY: step.PositionY,
		}
	}

	connections := make([]*models.Connection, len(journey.Connections))
	for i, conn := range journey.Connections {
		connections[i] = &models.Connection{
			ID:         conn.ID,
			FromStepID: conn.FromStepID,
			ToStepID:   conn.ToStepID,
			Label:      conn.Label,
		}
	}

	return &models.JourneyVersion{
		ID:             versionID,
		JourneyID:      journey.ID,
		OrganizationID: journey.OrganizationID,
		VersionNumber:  versionNumber,
		Definition:     models.Graph{Steps: steps, Connections: connections},
		PublishedAt:    time.Now().UTC(),
	}
}

// copyMap creates a copy of a config map. Values are shallow-copied; configs
// are treated as immutable JSON blobs.
func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return nil
	}

	result := make(map[string]any, len(original))
	for k, v := range original {
		result[k] = v
	}

	return result
}

// splitWeight parses a split connection label as an integer percentage.
func splitWeight(label string) (int, error) {
	weight, err := strconv.Atoi(label)
	if err != nil || weight <= 0 || weight > 100 {
		return 0, fmt.Errorf("%w: split connection label %q is not a percentage weight", models.ErrValidation, label)
	}

	return weight, nil
}
