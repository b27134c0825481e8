package trigger_test

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
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/persistence/memory"
	"github.com/voyage-hq/voyage/pkg/testutil"
	"github.com/voyage-hq/voyage/pkg/trigger"
)

func createMatcherFixture(t *testing.T, triggers ...*models.Trigger) (*trigger.Matcher, *memory.Persistence, *models.Journey) {
	t.Helper()

	store := memory.NewPersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	matcher := trigger.NewMatcher(store, logger)

	j := testutil.CreateTestJourneyWithGraph()
	j.Status = models.JourneyStatusActive
	j.Triggers = nil

	for _, tr := range triggers {
		tr.JourneyID = j.ID
		j.Triggers = append(j.Triggers, tr)
	}

	ctx := context.Background()
	require.NoError(t, store.Journeys().Save(ctx, j))
	require.NoError(t, store.Versions().Save(ctx, testutil.CreateTestVersion(j, 1)))

	return matcher, store, j
}

func scoreTrigger(operator string, threshold float64) *models.Trigger {
	return &models.Trigger{
		ID:     uuid.New().String(),
		Type:   models.TriggerTypeScoreThreshold,
		Config: map[string]any{"operator": operator, "threshold": threshold},
	}
}

func scoreEvent(contactID string, score float64) trigger.Event {
	return trigger.Event{
		Category:       models.TriggerTypeScoreThreshold,
		Name:           string(events.ScoreChangedEvent),
		OrganizationID: "org-test",
		ContactID:      contactID,
		Payload:        map[string]any{"score": score},
		Timestamp:      time.Now().UTC(),
	}
}

func TestMatch_ScoreThreshold(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		starts bool
	}{
		{name: "above threshold starts", score: 85, starts: true},
		{name: "at threshold starts", score: 80, starts: true},
		{name: "below threshold skips", score: 50, starts: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher, store, j := createMatcherFixture(t, scoreTrigger("gte", 80))
			ctx := context.Background()

			out, err := matcher.Match(ctx, scoreEvent("contact-1", tt.score))
			require.NoError(t, err)

			if !tt.starts {
				assert.Empty(t, out)

				return
			}

			// One ExecutionStarted plus one StepAvailable for the entry step.
			require.Len(t, out, 2)
			assert.Equal(t, events.ExecutionStartedEvent, out[0].GetType())
			assert.Equal(t, events.StepAvailableEvent, out[1].GetType())

			execution, err := store.Executions().ActiveByJourneyAndContact(ctx, j.ID, "contact-1")
			require.NoError(t, err)
			assert.Equal(t, models.ExecutionStatusActive, execution.Status)
		})
	}
}

func TestMatch_OneActiveExecutionPerContact(t *testing.T) {
	matcher, store, j := createMatcherFixture(t, scoreTrigger("gte", 80))
	ctx := context.Background()

	first, err := matcher.Match(ctx, scoreEvent("contact-1", 90))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	recordEntryAttempt(t, store, j.ID, "contact-1")

	second, err := matcher.Match(ctx, scoreEvent("contact-1", 95))
	require.NoError(t, err)
	assert.Empty(t, second)

	other, err := matcher.Match(ctx, scoreEvent("contact-2", 95))
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

// recordEntryAttempt simulates a worker picking up the entry hand-off.
func recordEntryAttempt(t *testing.T, store *memory.Persistence, journeyID, contactID string) {
	t.Helper()

	ctx := context.Background()

	execution, err := store.Executions().ActiveByJourneyAndContact(ctx, journeyID, contactID)
	require.NoError(t, err)

	require.NoError(t, store.Executions().SaveStep(ctx, &models.StepExecution{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		StepID:      "trigger-1",
		Status:      models.StepExecutionStatusRunning,
		Attempts:    1,
		StartedAt:   time.Now().UTC(),
	}))
}

func TestMatch_ReemitsEntryStepForExecutionWithNoAttempts(t *testing.T) {
	matcher, store, j := createMatcherFixture(t, scoreTrigger("gte", 80))
	ctx := context.Background()

	first, err := matcher.Match(ctx, scoreEvent("contact-1", 90))
	require.NoError(t, err)
	require.Len(t, first, 2)

	execution, err := store.Executions().ActiveByJourneyAndContact(ctx, j.ID, "contact-1")
	require.NoError(t, err)

	// The start hand-off was never processed: the execution is active with
	// zero step attempts. Redelivery of the event re-emits the entry step
	// instead of skipping silently.
	second, err := matcher.Match(ctx, scoreEvent("contact-1", 95))
	require.NoError(t, err)
	require.Len(t, second, 1)

	reemitted, ok := second[0].(events.StepAvailable)
	require.True(t, ok)
	assert.Equal(t, execution.ID, reemitted.ExecutionID)
	assert.Equal(t, "trigger-1", reemitted.StepID)

	// Once a worker records an attempt the redelivery is a plain skip.
	recordEntryAttempt(t, store, j.ID, "contact-1")

	third, err := matcher.Match(ctx, scoreEvent("contact-1", 95))
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestMatch_FirstMatchingTriggerWins(t *testing.T) {
	matcher, store, j := createMatcherFixture(t, scoreTrigger("gte", 50), scoreTrigger("gte", 60))
	ctx := context.Background()

	out, err := matcher.Match(ctx, scoreEvent("contact-1", 70))
	require.NoError(t, err)

	assert.Len(t, out, 2)

	executions, _, err := store.Executions().List(ctx, j.OrganizationID, nil, models.PageRequest{})
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestMatch_SkipsPausedJourney(t *testing.T) {
	matcher, store, j := createMatcherFixture(t, scoreTrigger("gte", 80))
	ctx := context.Background()

	j.Status = models.JourneyStatusPaused
	require.NoError(t, store.Journeys().Save(ctx, j))

	out, err := matcher.Match(ctx, scoreEvent("contact-1", 90))

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMatch_MalformedTriggerConfigSkipped(t *testing.T) {
	bad := &models.Trigger{
		ID:     uuid.New().String(),
		Type:   models.TriggerTypeScoreThreshold,
		Config: map[string]any{"operator": "around", "threshold": 80},
	}
	matcher, _, _ := createMatcherFixture(t, bad)

	out, err := matcher.Match(context.Background(), scoreEvent("contact-1", 90))

	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMatch_SegmentDirection(t *testing.T) {
	segmentTrigger := &models.Trigger{
		ID:     uuid.New().String(),
		Type:   models.TriggerTypeSegment,
		Config: map[string]any{"segment_id": "seg-1", "direction": "entered"},
	}

	tests := []struct {
		name    string
		payload map[string]any
		starts  bool
	}{
		{name: "entered matching segment", payload: map[string]any{"segment_id": "seg-1", "entered": true}, starts: true},
		{name: "exited matching segment", payload: map[string]any{"segment_id": "seg-1", "entered": false}, starts: false},
		{name: "different segment", payload: map[string]any{"segment_id": "seg-2", "entered": true}, starts: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher, _, _ := createMatcherFixture(t, segmentTrigger)

			out, err := matcher.Match(context.Background(), trigger.Event{
				Category:       models.TriggerTypeSegment,
				Name:           string(events.ContactSegmentChangedEvent),
				OrganizationID: "org-test",
				ContactID:      "contact-1",
				Payload:        tt.payload,
				Timestamp:      time.Now().UTC(),
			})

			require.NoError(t, err)

			if tt.starts {
				assert.Len(t, out, 2)
			} else {
				assert.Empty(t, out)
			}
		})
	}
}

func TestStartManual(t *testing.T) {
	matcher, store, j := createMatcherFixture(t)
	ctx := context.Background()

	out, err := matcher.StartManual(ctx, j.OrganizationID, j.ID, "contact-1")

	require.NoError(t, err)
	assert.Len(t, out, 2)

	execution, err := store.Executions().ActiveByJourneyAndContact(ctx, j.ID, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, "contact-1", execution.ContactID)
}

func TestStartManual_RejectsNonActiveJourney(t *testing.T) {
	matcher, store, j := createMatcherFixture(t)
	ctx := context.Background()

	j.Status = models.JourneyStatusDraft
	require.NoError(t, store.Journeys().Save(ctx, j))

	_, err := matcher.StartManual(ctx, j.OrganizationID, j.ID, "contact-1")

	assert.ErrorIs(t, err, models.ErrInvalidState)
}

func TestStartManual_RejectsDuplicateActiveExecution(t *testing.T) {
	matcher, _, j := createMatcherFixture(t)
	ctx := context.Background()

	_, err := matcher.StartManual(ctx, j.OrganizationID, j.ID, "contact-1")
	require.NoError(t, err)

	_, err = matcher.StartManual(ctx, j.OrganizationID, j.ID, "contact-1")

	assert.ErrorIs(t, err, models.ErrInvalidState)
}
