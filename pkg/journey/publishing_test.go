package journey_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/journey"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/testutil"
)

func createPublishingFixture(t *testing.T) (*journey.PublishingService, *memory.Persistence, *models.Journey) {
	t.Helper()

	store := memory.NewPersistence()
	service := journey.NewPublishingService(store)

	j := testutil.CreateTestJourneyWithGraph()
	require.NoError(t, store.Journeys().Save(context.Background(), j))

	return service, store, j
}

func TestPublish_CreatesFirstVersion(t *testing.T) {
	service, store, j := createPublishingFixture(t)
	ctx := context.Background()

	version, err := service.Publish(ctx, j.OrganizationID, j.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, version.VersionNumber)
	assert.Equal(t, j.ID, version.JourneyID)
	assert.Len(t, version.Definition.Steps, len(j.Steps))
	assert.False(t, version.PublishedAt.IsZero())

	saved, err := store.Journeys().GetByID(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, saved.Status)
}

func TestPublish_VersionNumbersAreMonotonic(t *testing.T) {
	service, store, j := createPublishingFixture(t)
	ctx := context.Background()

	first, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	// Re-entering draft models an edit cycle before the second publish.
	j.Status = models.JourneyStatusDraft
	require.NoError(t, store.Journeys().Save(ctx, j))

	second, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, first.VersionNumber)
	assert.Equal(t, 2, second.VersionNumber)

	latest, err := service.LatestVersion(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestPublish_RequiresDraftStatus(t *testing.T) {
	service, _, j := createPublishingFixture(t)
	ctx := context.Background()

	_, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	_, err = service.Publish(ctx, j.OrganizationID, j.ID)

	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestPublish_InvalidGraphRejected(t *testing.T) {
	store := memory.NewPersistence()
	service := journey.NewPublishingService(store)
	ctx := context.Background()

	j := testutil.CreateTestJourney()
	require.NoError(t, store.Journeys().Save(ctx, j))

	_, err := service.Publish(ctx, j.OrganizationID, j.ID)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPublish_FrozenGraphIsIndependentOfDraft(t *testing.T) {
	service, _, j := createPublishingFixture(t)
	ctx := context.Background()

	version, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	j.Steps[0].Config["mutated"] = true

	_, frozen := version.Definition.Steps[0].Config["mutated"]
	assert.False(t, frozen)
}

func TestPauseAndResume(t *testing.T) {
	service, store, j := createPublishingFixture(t)
	ctx := context.Background()

	_, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	require.NoError(t, service.Pause(ctx, j.OrganizationID, j.ID))

	paused, err := store.Journeys().GetByID(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusPaused, paused.Status)

	require.NoError(t, service.Resume(ctx, j.OrganizationID, j.ID))

	resumed, err := store.Journeys().GetByID(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusActive, resumed.Status)
}

func TestPause_RequiresActiveStatus(t *testing.T) {
	service, _, j := createPublishingFixture(t)

	err := service.Pause(context.Background(), j.OrganizationID, j.ID)

	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestResume_RequiresPausedStatus(t *testing.T) {
	service, _, j := createPublishingFixture(t)
	ctx := context.Background()

	_, err := service.Publish(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)

	err = service.Resume(ctx, j.OrganizationID, j.ID)

	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestArchive_IsTerminal(t *testing.T) {
	service, store, j := createPublishingFixture(t)
	ctx := context.Background()

	require.NoError(t, service.Archive(ctx, j.OrganizationID, j.ID))

	archived, err := store.Journeys().GetByID(ctx, j.OrganizationID, j.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JourneyStatusArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)

	assert.ErrorIs(t, service.Archive(ctx, j.OrganizationID, j.ID), models.ErrJourneyArchived)
	assert.ErrorIs(t, service.Pause(ctx, j.OrganizationID, j.ID), models.ErrJourneyArchived)
	assert.ErrorIs(t, service.Resume(ctx, j.OrganizationID, j.ID), models.ErrJourneyArchived)

	_, err = service.Publish(ctx, j.OrganizationID, j.ID)
	assert.ErrorIs(t, err, models.ErrJourneyArchived)
}
