package journey

import (
	"fmt"

	"github.com/voyage-hq/voyage/pkg/models"
)

// ValidateGraph checks a draft journey's graph before it may be frozen into
// a version:
//
//   - the graph has at least one step and at least one entry step
//   - connections reference existing steps
//   - condition steps have exactly two outgoing connections labeled yes/no
//   - split steps' outgoing connection weights sum to 100
//   - step configs match their per-type schemas
//   - the graph is acyclic
func ValidateGraph(journey *models.Journey) error {
	if len(journey.Steps) == 0 {
		return fmt.Errorf("%w: journey has no steps", models.ErrValidation)
	}

	graph := models.Graph{Steps: journey.Steps, Connections: journey.Connections}

	for _, conn := range journey.Connections {
		if graph.StepByID(conn.FromStepID) == nil {
			return fmt.Errorf("%w: connection %s references non-existent source step %s", models.ErrValidation, conn.ID, conn.FromStepID)
		}

		if graph.StepByID(conn.ToStepID) == nil {
			return fmt.Errorf("%w: connection %s references non-existent target step %s", models.ErrValidation, conn.ID, conn.ToStepID)
		}
	}

	for _, step := range journey.Steps {
		if err := models.ValidateStepConfig(step.Type, step.Config); err != nil {
			return fmt.Errorf("%w: step %s: %s", models.ErrValidation, step.ID, err.Error())
		}

		outgoing := graph.Outgoing(step.ID)

		switch step.Type {
		case models.StepTypeCondition:
			if err := validateConditionBranches(step, outgoing); err != nil {
				return err
			}
		case models.StepTypeSplit:
			if err := validateSplitWeights(step, outgoing); err != nil {
				return err
			}
		default:
			if err := validateLinearStep(step, outgoing); err != nil {
				return err
			}
		}
	}

	if len(graph.EntrySteps()) == 0 {
		return fmt.Errorf("%w: journey graph has no entry step", models.ErrValidation)
	}

	if graph.HasCycle() {
		return fmt.Errorf("%w: journey %s", models.ErrGraphCycle, journey.ID)
	}

	return nil
}

func validateConditionBranches(step *models.Step, outgoing []*models.Connection) error {
	if len(outgoing) != 2 {
		return fmt.Errorf("%w: condition step %s has %d outgoing connections, expected exactly 2", models.ErrValidation, step.ID, len(outgoing))
	}

	labels := map[string]int{}
	for _, conn := range outgoing {
		labels[conn.Label]++
	}

	if labels[models.ConnectionLabelYes] != 1 || labels[models.ConnectionLabelNo] != 1 {
		return fmt.Errorf("%w: condition step %s requires one %q and one %q outgoing connection", models.ErrValidation, step.ID, models.ConnectionLabelYes, models.ConnectionLabelNo)
	}

	return nil
}

func validateSplitWeights(step *models.Step, outgoing []*models.Connection) error {
	if len(outgoing) < 2 {
		return fmt.Errorf("%w: split step %s needs at least 2 outgoing connections", models.ErrValidation, step.ID)
	}

	sum := 0

	for _, conn := range outgoing {
		weight, err := splitWeight(conn.Label)
		if err != nil {
			return fmt.Errorf("split step %s: %w", step.ID, err)
		}

		sum += weight
	}

	if sum != 100 {
		return fmt.Errorf("%w: split step %s weights sum to %d, expected 100", models.ErrValidation, step.ID, sum)
	}

	return nil
}

// validateLinearStep checks non-branching steps: at most one outgoing
// connection and no routing label. Zero outgoing connections means the step
// is terminal, which is legal for any non-branching type.
func validateLinearStep(step *models.Step, outgoing []*models.Connection) error {
	if len(outgoing) > 1 {
		return fmt.Errorf("%w: step %s of type %s has %d outgoing connections, expected at most 1", models.ErrValidation, step.ID, step.Type, len(outgoing))
	}

	if len(outgoing) == 1 && outgoing[0].Label != "" {
		return fmt.Errorf("%w: step %s of type %s must not have a labeled outgoing connection", models.ErrValidation, step.ID, step.Type)
	}

	return nil
}
