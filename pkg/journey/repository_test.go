package journey_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/journey"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/testutil"
)

func createRepositoryFixture(t *testing.T) (*journey.Repository, *memory.Persistence, *models.Journey) {
	t.Helper()

	store := memory.NewPersistence()
	repo := journey.NewRepository(store)

	created, err := repo.Create(context.Background(), &models.Journey{
		OrganizationID: "org-test",
		Name:           "Welcome Flow",
		CreatedBy:      "test-user",
	})
	require.NoError(t, err)

	return repo, store, created
}

func TestRepository_Create(t *testing.T) {
	_, _, created := createRepositoryFixture(t)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.JourneyStatusDraft, created.Status)
	assert.False(t, created.CreatedAt.IsZero())
}

func TestRepository_FetchByID_ScopedToOrganization(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)
	ctx := context.Background()

	found, err := repo.FetchByID(ctx, "org-test", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FetchByID(ctx, "org-other", created.ID)
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
}

func TestRepository_AddStep(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)
	ctx := context.Background()

	step, err := repo.AddStep(ctx, "org-test", created.ID, &models.Step{
		Type:   models.StepTypeAction,
		Config: map[string]any{"kind": "send_message", "template_id": "tpl-1", "channel": "email"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, step.ID)
	assert.Equal(t, created.ID, step.JourneyID)

	found, err := repo.FetchByID(ctx, "org-test", created.ID)
	require.NoError(t, err)
	assert.Len(t, found.Steps, 1)
}

func TestRepository_AddStep_RejectsBadConfig(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)

	_, err := repo.AddStep(context.Background(), "org-test", created.ID, &models.Step{
		Type:   models.StepTypeAction,
		Config: map[string]any{"template_id": "tpl-1"},
	})

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRepository_EditsRequireDraftStatus(t *testing.T) {
	repo, store, created := createRepositoryFixture(t)
	ctx := context.Background()

	created.Status = models.JourneyStatusActive
	require.NoError(t, store.Journeys().Save(ctx, created))

	_, err := repo.AddStep(ctx, "org-test", created.ID, testutil.CreateTestStep())
	assert.ErrorIs(t, err, models.ErrInvalidState)

	_, err = repo.Update(ctx, "org-test", created.ID, "Renamed")
	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestRepository_EditsRejectArchivedJourney(t *testing.T) {
	repo, store, created := createRepositoryFixture(t)
	ctx := context.Background()

	created.Status = models.JourneyStatusArchived
	require.NoError(t, store.Journeys().Save(ctx, created))

	_, err := repo.AddStep(ctx, "org-test", created.ID, testutil.CreateTestStep())

	assert.ErrorIs(t, err, models.ErrJourneyArchived)
}

func TestRepository_RemoveStep_DropsTouchingConnections(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)
	ctx := context.Background()

	first, err := repo.AddStep(ctx, "org-test", created.ID, testutil.CreateTestStep())
	require.NoError(t, err)
	second, err := repo.AddStep(ctx, "org-test", created.ID, testutil.CreateTestStep())
	require.NoError(t, err)

	_, err = repo.AddConnection(ctx, "org-test", created.ID, &models.Connection{
		FromStepID: first.ID,
		ToStepID:   second.ID,
	})
	require.NoError(t, err)

	require.NoError(t, repo.RemoveStep(ctx, "org-test", created.ID, second.ID))

	found, err := repo.FetchByID(ctx, "org-test", created.ID)
	require.NoError(t, err)
	assert.Len(t, found.Steps, 1)
	assert.Empty(t, found.Connections)
}

func TestRepository_AddConnection_RejectsUnknownSteps(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)

	_, err := repo.AddConnection(context.Background(), "org-test", created.ID, &models.Connection{
		FromStepID: "ghost-a",
		ToStepID:   "ghost-b",
	})

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRepository_AddTrigger(t *testing.T) {
	repo, _, created := createRepositoryFixture(t)
	ctx := context.Background()

	trigger, err := repo.AddTrigger(ctx, "org-test", created.ID, &models.Trigger{
		Type:   models.TriggerTypeEvent,
		Config: map[string]any{"event_type": "contact.created"},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, trigger.ID)

	_, err = repo.AddTrigger(ctx, "org-test", created.ID, &models.Trigger{
		Type:   models.TriggerTypeScoreThreshold,
		Config: map[string]any{"operator": "around"},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRepository_Delete_DraftOnly(t *testing.T) {
	repo, store, created := createRepositoryFixture(t)
	ctx := context.Background()

	require.NoError(t, repo.Delete(ctx, "org-test", created.ID))

	_, err := repo.FetchByID(ctx, "org-test", created.ID)
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)

	published, err := repo.Create(ctx, &models.Journey{OrganizationID: "org-test", Name: "Published Flow"})
	require.NoError(t, err)

	published.Status = models.JourneyStatusActive
	require.NoError(t, store.Journeys().Save(ctx, published))

	assert.ErrorIs(t, repo.Delete(ctx, "org-test", published.ID), models.ErrInvalidState)
}
