package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
)

// MockEventBus is a mock implementation of eventbus.EventBus interface.
type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, key string, event eventbus.Event) error {
	args := m.Called(ctx, key, event)

	return args.Error(0)
}

func (m *MockEventBus) Handle(eventType events.EventType, handler eventbus.EventHandler) error {
	args := m.Called(eventType, handler)

	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, topics ...string) error {
	args := m.Called(ctx, topics)

	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()

	return args.Error(0)
}

func (m *MockEventBus) GenerateID() string {
	args := m.Called()

	return args.String(0)
}

// CapturingPublisher records published events in order. Tests assert on the
// sequence of engine events without wiring a real transport.
type CapturingPublisher struct {
	Events []eventbus.Event
	Keys   []string
}

func (p *CapturingPublisher) Publish(_ context.Context, key string, event eventbus.Event) error {
	p.Events = append(p.Events, event)
	p.Keys = append(p.Keys, key)

	return nil
}

// ByType returns the captured events matching the given type, in publish order.
func (p *CapturingPublisher) ByType(eventType events.EventType) []eventbus.Event {
	var matched []eventbus.Event

	for _, event := range p.Events {
		if event.GetType() == eventType {
			matched = append(matched, event)
		}
	}

	return matched
}
