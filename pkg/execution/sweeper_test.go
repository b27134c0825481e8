package execution

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/mocks"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/testutil"
)

type sweeperFixture struct {
	sweeper   *Sweeper
	store     *memory.Persistence
	published *mocks.CapturingPublisher
	journey   *models.Journey
	execution *models.Execution
}

func createSweeperFixture(t *testing.T, steps []*models.Step) *sweeperFixture {
	t.Helper()

	store := memory.NewPersistence()
	published := &mocks.CapturingPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	j := testutil.CreateTestJourney(testutil.WithJourneyStatus(models.JourneyStatusActive))
	j.Steps = steps

	ctx := context.Background()
	require.NoError(t, store.Journeys().Save(ctx, j))

	version := testutil.CreateTestVersion(j, 1)
	require.NoError(t, store.Versions().Save(ctx, version))

	execution := testutil.CreateTestExecution(version, "contact-1", steps[0].ID)
	created, err := store.Executions().CreateIfNoneActive(ctx, execution)
	require.NoError(t, err)
	require.True(t, created)

	return &sweeperFixture{
		sweeper:   NewSweeper(store, published, DefaultStaleAfter, logger),
		store:     store,
		published: published,
		journey:   j,
		execution: execution,
	}
}

func saveStepAttempt(t *testing.T, f *sweeperFixture, status models.StepExecutionStatus, attempts int, age time.Duration) *models.StepExecution {
	t.Helper()

	stepExec := &models.StepExecution{
		ID:          uuid.New().String(),
		ExecutionID: f.execution.ID,
		StepID:      f.journey.Steps[0].ID,
		Status:      status,
		Attempts:    attempts,
		Result:      map[string]any{"score": 42},
		StartedAt:   time.Now().UTC().Add(-age),
	}
	require.NoError(t, f.store.Executions().SaveStep(context.Background(), stepExec))

	return stepExec
}

func TestSweep_PendingNeverStartedGetsStepAvailable(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	parked := saveStepAttempt(t, f, models.StepExecutionStatusPending, 0, time.Minute)
	ctx := context.Background()

	require.NoError(t, f.sweeper.Sweep(ctx))

	available := f.published.ByType(events.StepAvailableEvent)
	require.Len(t, available, 1)

	evt, ok := available[0].(events.StepAvailable)
	require.True(t, ok)
	assert.Equal(t, "notify", evt.StepID)
	assert.Equal(t, parked.Result, evt.State)

	// The parked row settles so the next pass does not re-emit it.
	saved, err := f.store.Executions().StepByID(ctx, parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusSkipped, saved.Status)
}

func TestSweep_PendingMidFlightGetsResume(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	saveStepAttempt(t, f, models.StepExecutionStatusPending, 2, time.Minute)

	require.NoError(t, f.sweeper.Sweep(context.Background()))

	resumes := f.published.ByType(events.ResumeStepEvent)
	require.Len(t, resumes, 1)
	assert.Equal(t, "notify", resumes[0].(events.ResumeStep).StepID)
	assert.Empty(t, f.published.ByType(events.StepAvailableEvent))
}

func TestSweep_PausedJourneyStaysParked(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	saveStepAttempt(t, f, models.StepExecutionStatusPending, 0, time.Hour)
	ctx := context.Background()

	f.journey.Status = models.JourneyStatusPaused
	require.NoError(t, f.store.Journeys().Save(ctx, f.journey))

	require.NoError(t, f.sweeper.Sweep(ctx))

	assert.Empty(t, f.published.Events)
}

func TestSweep_AbandonedRunningStepReclaimed(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	abandoned := saveStepAttempt(t, f, models.StepExecutionStatusRunning, 1, time.Hour)
	ctx := context.Background()

	require.NoError(t, f.sweeper.Sweep(ctx))

	saved, err := f.store.Executions().StepByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusFailed, saved.Status)
	assert.NotEmpty(t, saved.Error)

	resumes := f.published.ByType(events.ResumeStepEvent)
	require.Len(t, resumes, 1)
}

func TestSweep_FreshRunningStepLeftAlone(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	saveStepAttempt(t, f, models.StepExecutionStatusRunning, 1, time.Minute)

	require.NoError(t, f.sweeper.Sweep(context.Background()))

	assert.Empty(t, f.published.Events)
}

func TestSweep_RunningDelayStepLeftParked(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{
		testutil.CreateTestStep(
			testutil.WithStepID("wait"),
			testutil.WithStepType(models.StepTypeDelay),
			testutil.WithStepConfig(map[string]any{"mode": "until_event", "event_type": "form.submitted"}),
		),
	})
	parked := saveStepAttempt(t, f, models.StepExecutionStatusRunning, 1, 24*time.Hour)
	ctx := context.Background()

	require.NoError(t, f.sweeper.Sweep(ctx))

	saved, err := f.store.Executions().StepByID(ctx, parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusRunning, saved.Status)
	assert.Empty(t, f.published.Events)
}

func TestSweep_TerminalExecutionRowSettles(t *testing.T) {
	f := createSweeperFixture(t, []*models.Step{testutil.CreateTestStep(testutil.WithStepID("notify"))})
	parked := saveStepAttempt(t, f, models.StepExecutionStatusPending, 0, time.Hour)
	ctx := context.Background()

	f.execution.Status = models.ExecutionStatusCanceled
	require.NoError(t, f.store.Executions().Update(ctx, f.execution))

	require.NoError(t, f.sweeper.Sweep(ctx))

	saved, err := f.store.Executions().StepByID(ctx, parked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepExecutionStatusSkipped, saved.Status)
	assert.Empty(t, f.published.Events)
}
