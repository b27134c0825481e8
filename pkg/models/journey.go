// Package models defines the core domain models for journey-based marketing automation.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey.
type JourneyStatus string

const (
	JourneyStatusDraft    JourneyStatus = "draft"    // Editable, not executable
	JourneyStatusActive   JourneyStatus = "active"   // Published, accepting and advancing executions
	JourneyStatusPaused   JourneyStatus = "paused"   // Intake and advancement suspended, state retained
	JourneyStatusArchived JourneyStatus = "archived" // Terminal, rejects all execution activity
)

// Journey represents a versioned marketing workflow definition. The draft
// graph (Steps/Triggers/Connections) is mutable only while the journey is in
// draft status; publishing freezes it into an immutable JourneyVersion.
type Journey struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id" validate:"required"`
	Name           string        `json:"name"            validate:"required,min=3"`
	Status         JourneyStatus `json:"status"          validate:"required"`
	CreatedBy      string        `json:"created_by"`
	Steps          []*Step       `json:"steps"`
	Triggers       []*Trigger    `json:"triggers"`
	Connections    []*Connection `json:"connections"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	ArchivedAt     *time.Time    `json:"archived_at,omitempty"`
}

// Editable reports whether the journey graph may still be modified.
func (j *Journey) Editable() bool {
	return j.Status == JourneyStatusDraft
}

// AcceptsExecutions reports whether new executions may start for this journey.
func (j *Journey) AcceptsExecutions() bool {
	return j.Status == JourneyStatusActive
}

// TriggerType represents the kind of rule that starts a journey.
type TriggerType string

const (
	TriggerTypeEvent          TriggerType = "event"
	TriggerTypeSegment        TriggerType = "segment"
	TriggerTypeManual         TriggerType = "manual"
	TriggerTypeScheduled      TriggerType = "scheduled"
	TriggerTypeScoreThreshold TriggerType = "score_threshold"
	TriggerTypeIntentSignal   TriggerType = "intent_signal"
)

// Trigger is a rule that starts a journey for a contact in response to an
// incoming event. Manual and scheduled triggers are started by explicit API
// calls or the scheduler, never from the event-matching path.
type Trigger struct {
	ID        string         `json:"id"`
	JourneyID string         `json:"journey_id" validate:"required"`
	Type      TriggerType    `json:"type"       validate:"required"`
	Config    map[string]any `json:"config"`
}

// EventMatchable reports whether this trigger type participates in
// event-stream matching.
func (t *Trigger) EventMatchable() bool {
	switch t.Type {
	case TriggerTypeManual, TriggerTypeScheduled:
		return false
	default:
		return true
	}
}
