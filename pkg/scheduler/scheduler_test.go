package scheduler

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
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/mocks"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/testutil"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

func createSchedulerFixture() (*Scheduler, *memory.Persistence, *mocks.CapturingPublisher) {
	store := memory.NewPersistence()
	published := &mocks.CapturingPublisher{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	sweeper := execution.NewSweeper(store, published, execution.DefaultStaleAfter, logger)
	matcher := trigger.NewMatcher(store, logger)

	return NewScheduler(store, published, sweeper, matcher, DefaultPollInterval, DefaultSweepInterval, logger), store, published
}

func saveScheduledJourney(t *testing.T, store *memory.Persistence, cronExpr string, contactIDs []string) *models.Journey {
	t.Helper()

	j := testutil.CreateTestJourneyWithGraph()
	j.Status = models.JourneyStatusActive
	j.Triggers = []*models.Trigger{
		{
			ID:        uuid.New().String(),
			JourneyID: j.ID,
			Type:      models.TriggerTypeScheduled,
			Config: map[string]any{
				"cron_expression": cronExpr,
				"contact_ids":     contactIDs,
			},
		},
	}

	ctx := context.Background()
	require.NoError(t, store.Journeys().Save(ctx, j))
	require.NoError(t, store.Versions().Save(ctx, testutil.CreateTestVersion(j, 1)))

	return j
}

func saveSchedule(t *testing.T, store *memory.Persistence, resumeAt time.Time) *models.ResumeSchedule {
	t.Helper()

	schedule := &models.ResumeSchedule{
		ID:             uuid.New().String(),
		ExecutionID:    "exec-1",
		StepID:         "wait",
		OrganizationID: "org-1",
		ResumeAt:       resumeAt,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Schedules().Save(context.Background(), schedule))

	return schedule
}

func TestDeliverDue_PublishesAndMarksDelivered(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	due := saveSchedule(t, store, time.Now().UTC().Add(-time.Minute))
	saveSchedule(t, store, time.Now().UTC().Add(time.Hour))

	require.NoError(t, sched.DeliverDue(ctx))

	resumes := published.ByType(events.ResumeStepEvent)
	require.Len(t, resumes, 1)

	evt, ok := resumes[0].(events.ResumeStep)
	require.True(t, ok)
	assert.Equal(t, due.ExecutionID, evt.ExecutionID)
	assert.Equal(t, due.StepID, evt.StepID)
	assert.Equal(t, due.OrganizationID, evt.OrganizationID)

	remaining, err := store.Schedules().Due(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDeliverDue_DeliveredOnlyOnce(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	saveSchedule(t, store, time.Now().UTC().Add(-time.Minute))

	require.NoError(t, sched.DeliverDue(ctx))
	require.NoError(t, sched.DeliverDue(ctx))

	assert.Len(t, published.ByType(events.ResumeStepEvent), 1)
}

func TestDeliverDue_NothingDue(t *testing.T) {
	sched, store, published := createSchedulerFixture()

	saveSchedule(t, store, time.Now().UTC().Add(time.Hour))

	require.NoError(t, sched.DeliverDue(context.Background()))

	assert.Empty(t, published.Events)
}

func TestFireScheduledTriggers_StartsExecutionsForConfiguredContacts(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	j := saveScheduledJourney(t, store, "* * * * *", []string{"contact-1", "contact-2"})

	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	sched.lastCronPass = now.Add(-90 * time.Second)

	require.NoError(t, sched.FireScheduledTriggers(ctx, now))

	assert.Len(t, published.ByType(events.ExecutionStartedEvent), 2)
	assert.Len(t, published.ByType(events.StepAvailableEvent), 2)

	for _, contactID := range []string{"contact-1", "contact-2"} {
		execution, err := store.Executions().ActiveByJourneyAndContact(ctx, j.ID, contactID)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionStatusActive, execution.Status)
	}
}

func TestFireScheduledTriggers_WindowAdvances(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	saveScheduledJourney(t, store, "* * * * *", []string{"contact-1"})

	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	sched.lastCronPass = now.Add(-90 * time.Second)

	require.NoError(t, sched.FireScheduledTriggers(ctx, now))
	require.NoError(t, sched.FireScheduledTriggers(ctx, now.Add(time.Second)))

	assert.Len(t, published.ByType(events.ExecutionStartedEvent), 1)
}

func TestFireScheduledTriggers_SkipsContactsAlreadyRunning(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	j := saveScheduledJourney(t, store, "* * * * *", []string{"contact-1", "contact-2"})

	version, err := store.Versions().LatestByJourney(ctx, j.ID)
	require.NoError(t, err)

	running := testutil.CreateTestExecution(version, "contact-1", "action-1")
	created, err := store.Executions().CreateIfNoneActive(ctx, running)
	require.NoError(t, err)
	require.True(t, created)

	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	sched.lastCronPass = now.Add(-90 * time.Second)

	require.NoError(t, sched.FireScheduledTriggers(ctx, now))

	started := published.ByType(events.ExecutionStartedEvent)
	require.Len(t, started, 1)

	evt, ok := started[0].(events.ExecutionStarted)
	require.True(t, ok)
	assert.Equal(t, "contact-2", evt.ContactID)
}

func TestFireScheduledTriggers_SkipsMalformedCron(t *testing.T) {
	sched, store, published := createSchedulerFixture()
	ctx := context.Background()

	saveScheduledJourney(t, store, "not a cron", []string{"contact-1"})

	now := time.Date(2026, 1, 2, 12, 0, 30, 0, time.UTC)
	sched.lastCronPass = now.Add(-90 * time.Second)

	require.NoError(t, sched.FireScheduledTriggers(ctx, now))

	assert.Empty(t, published.Events)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	sched, _, _ := createSchedulerFixture()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- sched.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
