package eventbus

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/events"
)

// capturePublisher records every published message with its topic.
type capturePublisher struct {
	topics   []string
	messages []*message.Message
}

func (p *capturePublisher) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.messages = append(p.messages, msg)
	}

	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestPublish_SetsTopicAndMetadata(t *testing.T) {
	capture := &capturePublisher{}
	bus := NewWatermillEventBus(capture, nil)

	event := events.StepAvailable{
		BaseEvent:   events.NewBaseEvent(events.StepAvailableEvent, "org-1", "contact-1"),
		ExecutionID: "exec-1",
		StepID:      "step-1",
	}

	require.NoError(t, bus.Publish(context.Background(), "exec-1", event))

	require.Len(t, capture.messages, 1)
	assert.Equal(t, events.EngineEventsTopic, capture.topics[0])

	msg := capture.messages[0]
	assert.Equal(t, "exec-1", msg.Metadata.Get(events.EventMetadataKey))
	assert.Equal(t, string(events.StepAvailableEvent), msg.Metadata.Get(events.EventTypeMetadataKey))
}

func TestTopicFor(t *testing.T) {
	tests := []struct {
		eventType events.EventType
		topic     string
	}{
		{events.ContactCreatedEvent, events.ContactEventsTopic},
		{events.ScoreChangedEvent, events.ContactEventsTopic},
		{events.StepAvailableEvent, events.EngineEventsTopic},
		{events.ExecutionCompletedEvent, events.EngineEventsTopic},
		{events.SendMessageCommand, events.CommandsTopic},
		{events.EnrollInSequenceCommand, events.CommandsTopic},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.topic, topicFor(tt.eventType), string(tt.eventType))
	}
}

func TestDeadLetter_CopiesMessageIntact(t *testing.T) {
	capture := &capturePublisher{}
	bus := NewWatermillEventBus(capture, nil)

	msg := message.NewMessage("msg-dead", []byte(`{"execution_id":"exec-1"}`))
	msg.Metadata.Set(events.EventTypeMetadataKey, string(events.StepAvailableEvent))
	msg.Metadata.Set(events.EventMetadataKey, "exec-1")

	bus.deadLetter(msg)

	require.Len(t, capture.messages, 1)
	assert.Equal(t, events.DeadLetterTopic, capture.topics[0])

	dead := capture.messages[0]
	assert.Equal(t, msg.UUID, dead.UUID)
	assert.Equal(t, msg.Payload, dead.Payload)
	assert.Equal(t, string(events.StepAvailableEvent), dead.Metadata.Get(events.EventTypeMetadataKey))
	assert.Equal(t, "exec-1", dead.Metadata.Get(events.EventMetadataKey))

	select {
	case <-msg.Acked():
	default:
		t.Fatal("original message was not acked after dead-lettering")
	}
}

func TestNackOrDeadLetter_ExhaustsAttempts(t *testing.T) {
	capture := &capturePublisher{}
	bus := NewWatermillEventBus(capture, nil)

	for i := 0; i < DefaultMaxDeliveries-1; i++ {
		msg := message.NewMessage("msg-retry", []byte("{}"))
		bus.nackOrDeadLetter(msg)

		select {
		case <-msg.Nacked():
		default:
			t.Fatalf("delivery %d should have been nacked", i+1)
		}
	}

	assert.Empty(t, capture.messages)

	last := message.NewMessage("msg-retry", []byte("{}"))
	bus.nackOrDeadLetter(last)

	require.Len(t, capture.messages, 1)
	assert.Equal(t, events.DeadLetterTopic, capture.topics[0])

	select {
	case <-last.Acked():
	default:
		t.Fatal("exhausted message was not acked after dead-lettering")
	}

	// The attempt counter is cleared once the message is parked.
	bus.mu.Lock()
	_, tracked := bus.attempts["msg-retry"]
	bus.mu.Unlock()
	assert.False(t, tracked)
}
