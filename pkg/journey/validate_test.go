package journey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voyage-hq/voyage/pkg/journey"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/testutil"
)

func actionStep(id string) *models.Step {
	return testutil.CreateTestStep(testutil.WithStepID(id))
}

func conditionStep(id string) *models.Step {
	return testutil.CreateTestStep(
		testutil.WithStepID(id),
		testutil.WithStepType(models.StepTypeCondition),
		testutil.WithStepConfig(map[string]any{"field": "score", "operator": "gte", "value": 50}),
	)
}

func splitStep(id string) *models.Step {
	return testutil.CreateTestStep(
		testutil.WithStepID(id),
		testutil.WithStepType(models.StepTypeSplit),
		testutil.WithStepConfig(map[string]any{}),
	)
}

func connect(id, from, to, label string) *models.Connection {
	return &models.Connection{ID: id, FromStepID: from, ToStepID: to, Label: label}
}

func TestValidateGraph_ValidJourney(t *testing.T) {
	j := testutil.CreateTestJourneyWithGraph()

	assert.NoError(t, journey.ValidateGraph(j))
}

func TestValidateGraph_EmptyGraph(t *testing.T) {
	j := testutil.CreateTestJourney()

	err := journey.ValidateGraph(j)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestValidateGraph_ConnectionToMissingStep(t *testing.T) {
	j := testutil.CreateTestJourney()
	j.Steps = []*models.Step{actionStep("a")}
	j.Connections = []*models.Connection{connect("c1", "a", "ghost", "")}

	err := journey.ValidateGraph(j)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestValidateGraph_ConditionBranches(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		wantErr bool
	}{
		{name: "yes and no", labels: []string{"yes", "no"}},
		{name: "only yes", labels: []string{"yes"}, wantErr: true},
		{name: "two yes branches", labels: []string{"yes", "yes"}, wantErr: true},
		{name: "unlabeled branches", labels: []string{"", ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testutil.CreateTestJourney()
			j.Steps = []*models.Step{conditionStep("cond")}
			targets := []string{"t0", "t1"}

			for i, label := range tt.labels {
				j.Steps = append(j.Steps, actionStep(targets[i]))
				j.Connections = append(j.Connections, connect("c"+targets[i], "cond", targets[i], label))
			}

			err := journey.ValidateGraph(j)

			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGraph_SplitWeights(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		wantErr bool
	}{
		{name: "fifty fifty", labels: []string{"50", "50"}},
		{name: "three way", labels: []string{"20", "30", "50"}},
		{name: "sum below hundred", labels: []string{"40", "40"}, wantErr: true},
		{name: "sum above hundred", labels: []string{"60", "60"}, wantErr: true},
		{name: "non-numeric weight", labels: []string{"most", "50"}, wantErr: true},
		{name: "single branch", labels: []string{"100"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := testutil.CreateTestJourney()
			j.Steps = []*models.Step{splitStep("split")}

			for i, label := range tt.labels {
				target := "t" + string(rune('0'+i))
				j.Steps = append(j.Steps, actionStep(target))
				j.Connections = append(j.Connections, connect("c"+target, "split", target, label))
			}

			err := journey.ValidateGraph(j)

			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateGraph_LinearStepWithMultipleOutgoing(t *testing.T) {
	j := testutil.CreateTestJourney()
	j.Steps = []*models.Step{actionStep("a"), actionStep("b"), actionStep("c")}
	j.Connections = []*models.Connection{
		connect("c1", "a", "b", ""),
		connect("c2", "a", "c", ""),
	}

	err := journey.ValidateGraph(j)

	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestValidateGraph_CycleRejected(t *testing.T) {
	j := testutil.CreateTestJourney()
	j.Steps = []*models.Step{actionStep("start"), conditionStep("cond"), actionStep("a"), actionStep("b")}
	j.Connections = []*models.Connection{
		connect("c0", "start", "cond", ""),
		connect("c1", "cond", "a", "yes"),
		connect("c2", "cond", "b", "no"),
		connect("c3", "a", "cond", ""),
	}

	err := journey.ValidateGraph(j)

	assert.ErrorIs(t, err, models.ErrGraphCycle)
}

func TestValidateGraph_BadStepConfig(t *testing.T) {
	j := testutil.CreateTestJourney()
	j.Steps = []*models.Step{
		testutil.CreateTestStep(
			testutil.WithStepID("a"),
			testutil.WithStepConfig(map[string]any{"template_id": "tpl-1"}),
		),
	}

	err := journey.ValidateGraph(j)

	assert.ErrorIs(t, err, models.ErrValidation)
}
