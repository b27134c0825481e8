package events

import "time"

// Engine lifecycle events published on EngineEventsTopic.

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	JourneyID   string `json:"journey_id"`
	VersionID   string `json:"version_id"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	JourneyID   string        `json:"journey_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	JourneyID   string `json:"journey_id"`
	StepID      string `json:"step_id,omitempty"`
	Error       string `json:"error"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCanceled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	JourneyID   string `json:"journey_id"`
	CanceledBy  string `json:"canceled_by,omitempty"`
}

func (e ExecutionCanceled) GetType() EventType { return ExecutionCanceledEvent }

// StepAvailable signals that a step is ready for interpretation. Every hop
// through the graph is one of these messages, so advancement is resumable
// and never holds a worker across a suspension point.
type StepAvailable struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	State       map[string]any `json:"state,omitempty"`
}

func (e StepAvailable) GetType() EventType { return StepAvailableEvent }

type StepCompleted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	StepID      string         `json:"step_id"`
	Result      map[string]any `json:"result,omitempty"`
}

func (e StepCompleted) GetType() EventType { return StepCompletedEvent }

// ResumeStep is redelivered by the scheduler at or after a delay step's
// target time.
type ResumeStep struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id"`
}

func (e ResumeStep) GetType() EventType { return ResumeStepEvent }
