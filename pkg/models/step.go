package models

// StepType represents the kind of node in a journey graph.
type StepType string

const (
	StepTypeTrigger   StepType = "trigger"
	StepTypeAction    StepType = "action"
	StepTypeCondition StepType = "condition"
	StepTypeDelay     StepType = "delay"
	StepTypeSplit     StepType = "split"
)

// Step is one node in a journey graph. VersionID is empty on draft steps and
// set on the frozen copies owned by a published JourneyVersion. Position is
// presentation-only and never consulted by the engine.
type Step struct {
	ID        string         `json:"id"`
	JourneyID string         `json:"journey_id"`
	VersionID string         `json:"version_id,omitempty"`
	Type      StepType       `json:"type" validate:"required"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Connection labels with fixed meaning. Condition steps route on yes/no;
// split steps interpret labels as integer percentage weights.
const (
	ConnectionLabelYes = "yes"
	ConnectionLabelNo  = "no"
)

// Connection is a directed, optionally labeled edge between two steps.
type Connection struct {
	ID         string `json:"id"`
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Label      string `json:"label,omitempty"`
}
