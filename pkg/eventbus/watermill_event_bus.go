package eventbus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voyage-hq/voyage/pkg/events"
)

// DefaultMaxDeliveries is how many times a message is attempted before it is
// parked on the dead-letter topic for manual inspection or replay.
const DefaultMaxDeliveries = 5

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	maxDeliveries int

	mu            sync.Mutex
	subscriptions map[events.EventType]EventHandler
	attempts      map[string]int
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		maxDeliveries: DefaultMaxDeliveries,
		subscriptions: make(map[events.EventType]EventHandler),
		attempts:      make(map[string]int),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// topicFor routes an event to its topic by type family.
func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.SendMessageCommand,
		events.AwardPointsCommand,
		events.CallWebhookCommand,
		events.EnrollInSequenceCommand:
		return events.CommandsTopic
	case events.ContactCreatedEvent,
		events.FormSubmittedEvent,
		events.MessageDeliveredEvent,
		events.MessageOpenedEvent,
		events.MessageClickedEvent,
		events.MessageBouncedEvent,
		events.ScoreChangedEvent,
		events.IntentDetectedEvent,
		events.ContactSegmentChangedEvent:
		return events.ContactEventsTopic
	default:
		return events.EngineEventsTopic
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		topics = []string{events.ContactEventsTopic, events.EngineEventsTopic}
	}

	for _, topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.Lock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.Unlock()

		if !exists {
			msg.Ack()

			continue
		}

		event := decodeEvent(eventType)
		if event == nil {
			eb.deadLetter(msg)

			continue
		}

		err := json.Unmarshal(msg.Payload, event)
		if err != nil {
			eb.deadLetter(msg)

			continue
		}

		err = handler(ctx, event)
		if err != nil {
			eb.nackOrDeadLetter(msg)

			continue
		}

		eb.clearAttempts(msg.UUID)
		msg.Ack()
	}
}

// decodeEvent returns a zero value of the concrete type for an event type,
// or nil for unknown types.
func decodeEvent(eventType events.EventType) any {
	switch eventType {
	case events.ContactCreatedEvent:
		return &events.ContactCreated{}
	case events.FormSubmittedEvent:
		return &events.FormSubmitted{}
	case events.MessageDeliveredEvent:
		return &events.MessageDelivered{}
	case events.MessageOpenedEvent:
		return &events.MessageOpened{}
	case events.MessageClickedEvent:
		return &events.MessageClicked{}
	case events.MessageBouncedEvent:
		return &events.MessageBounced{}
	case events.ScoreChangedEvent:
		return &events.ScoreChanged{}
	case events.IntentDetectedEvent:
		return &events.IntentDetected{}
	case events.ContactSegmentChangedEvent:
		return &events.ContactSegmentChanged{}
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}
	case events.ExecutionCanceledEvent:
		return &events.ExecutionCanceled{}
	case events.StepAvailableEvent:
		return &events.StepAvailable{}
	case events.StepCompletedEvent:
		return &events.StepCompleted{}
	case events.ResumeStepEvent:
		return &events.ResumeStep{}
	case events.SendMessageCommand:
		return &events.SendMessage{}
	case events.AwardPointsCommand:
		return &events.AwardPoints{}
	case events.CallWebhookCommand:
		return &events.CallWebhook{}
	case events.EnrollInSequenceCommand:
		return &events.EnrollInSequence{}
	default:
		return nil
	}
}

// nackOrDeadLetter negatively acknowledges a failed message so the transport
// redelivers it, unless its attempt budget is exhausted, in which case it is
// copied to the dead-letter topic and acknowledged. Messages are never
// silently dropped and never retried unboundedly.
func (eb *WatermillEventBus) nackOrDeadLetter(msg *message.Message) {
	eb.mu.Lock()
	eb.attempts[msg.UUID]++
	exhausted := eb.attempts[msg.UUID] >= eb.maxDeliveries
	eb.mu.Unlock()

	if exhausted {
		eb.deadLetter(msg)

		return
	}

	msg.Nack()
}

func (eb *WatermillEventBus) deadLetter(msg *message.Message) {
	dead := msg.Copy()

	err := eb.publisher.Publish(events.DeadLetterTopic, dead)
	if err != nil {
		// Keep the message in flight; the transport will redeliver.
		msg.Nack()

		return
	}

	eb.clearAttempts(msg.UUID)
	msg.Ack()
}

func (eb *WatermillEventBus) clearAttempts(uuid string) {
	eb.mu.Lock()
	delete(eb.attempts, uuid)
	eb.mu.Unlock()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
