// Package events defines the event and command types flowing through the
// journey engine: the tenant event stream it consumes and the commands it
// emits toward the owning subsystems.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const ContactEventsTopic = "voyage.contact.events" // tenant event stream consumed by the engine
const EngineEventsTopic = "voyage.engine.events"   // execution lifecycle and step events
const CommandsTopic = "voyage.commands"            // side-effect commands for owning subsystems
const DeadLetterTopic = "voyage.contact.events.dlq"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Consumed contact-stream events.
	ContactCreatedEvent        EventType = "contact.created"
	FormSubmittedEvent         EventType = "form.submitted"
	MessageDeliveredEvent      EventType = "message.delivered"
	MessageOpenedEvent         EventType = "message.opened"
	MessageClickedEvent        EventType = "message.clicked"
	MessageBouncedEvent        EventType = "message.bounced"
	ScoreChangedEvent          EventType = "score.changed"
	IntentDetectedEvent        EventType = "intent.detected"
	ContactSegmentChangedEvent EventType = "contact.segment.changed"

	// Engine lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCanceledEvent  EventType = "execution.canceled"
	StepAvailableEvent      EventType = "execution.step.available"
	StepCompletedEvent      EventType = "execution.step.completed"
	ResumeStepEvent         EventType = "execution.step.resume"

	// Produced side-effect commands.
	SendMessageCommand      EventType = "command.send_message"
	AwardPointsCommand      EventType = "command.award_points"
	CallWebhookCommand      EventType = "command.call_webhook"
	EnrollInSequenceCommand EventType = "command.enroll_in_sequence"
)

type BaseEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organization_id"`
	ContactID      string         `json:"contact_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// EventKey is the deduplication key for at-least-once delivery. It stays
// stable across redeliveries because the ID travels with the payload.
func (b BaseEvent) EventKey() string {
	if b.ID == "" {
		return ""
	}

	return string(b.Type) + ":" + b.ID
}

func NewBaseEvent(eventType EventType, organizationID, contactID string) BaseEvent {
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		OrganizationID: organizationID,
		ContactID:      contactID,
		Metadata:       make(map[string]any),
	}
}

// Consumed contact-stream events.

type ContactCreated struct {
	BaseEvent

	Payload map[string]any `json:"payload,omitempty"`
}

func (e ContactCreated) GetType() EventType { return ContactCreatedEvent }

type FormSubmitted struct {
	BaseEvent

	FormID string         `json:"form_id"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (e FormSubmitted) GetType() EventType { return FormSubmittedEvent }

// MessageFeedback carries delivery feedback for any engagement kind; the
// concrete type constant distinguishes delivered/opened/clicked/bounced.
type MessageFeedback struct {
	BaseEvent

	Channel   string `json:"channel"`
	MessageID string `json:"message_id,omitempty"`
}

type MessageDelivered struct{ MessageFeedback }

func (e MessageDelivered) GetType() EventType { return MessageDeliveredEvent }

type MessageOpened struct{ MessageFeedback }

func (e MessageOpened) GetType() EventType { return MessageOpenedEvent }

type MessageClicked struct{ MessageFeedback }

func (e MessageClicked) GetType() EventType { return MessageClickedEvent }

type MessageBounced struct{ MessageFeedback }

func (e MessageBounced) GetType() EventType { return MessageBouncedEvent }

type ScoreChanged struct {
	BaseEvent

	Score         float64 `json:"score"`
	PreviousScore float64 `json:"previous_score"`
}

func (e ScoreChanged) GetType() EventType { return ScoreChangedEvent }

type IntentDetected struct {
	BaseEvent

	IntentType string  `json:"intent_type"`
	Strength   float64 `json:"strength"`
}

func (e IntentDetected) GetType() EventType { return IntentDetectedEvent }

type ContactSegmentChanged struct {
	BaseEvent

	SegmentID string `json:"segment_id"`
	Entered   bool   `json:"entered"`
}

func (e ContactSegmentChanged) GetType() EventType { return ContactSegmentChangedEvent }
