// Package web provides the REST API for journey management and execution
// control.
package web

import "github.com/voyage-hq/voyage/pkg/models"

type CreateJourneyRequest struct {
	Name      string `json:"name"       validate:"required,min=3"`
	CreatedBy string `json:"created_by" validate:"required"`
}

type UpdateJourneyRequest struct {
	Name string `json:"name" validate:"required,min=3"`
}

type StepRequest struct {
	Type      models.StepType `json:"type"       validate:"required,oneof=trigger action condition delay split"`
	Config    map[string]any  `json:"config"`
	PositionX int             `json:"position_x"`
	PositionY int             `json:"position_y"`
}

type ConnectionRequest struct {
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Label      string `json:"label,omitempty"`
}

type TriggerRequest struct {
	Type   models.TriggerType `json:"type"   validate:"required,oneof=event segment manual scheduled score_threshold intent_signal"`
	Config map[string]any     `json:"config"`
}

type StartExecutionRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
}

type CancelExecutionRequest struct {
	CanceledBy string `json:"canceled_by,omitempty"`
}

// ListResponse is the envelope for every paginated collection.
type ListResponse struct {
	Items      any             `json:"items"`
	Pagination models.PageInfo `json:"pagination"`
}

// ExecutionDetail is an execution with its attempt history and log tail.
type ExecutionDetail struct {
	*models.Execution

	Steps []*models.StepExecution `json:"steps"`
	Logs  []*models.ExecutionLog  `json:"logs"`
}
