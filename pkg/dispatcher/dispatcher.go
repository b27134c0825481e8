// Package dispatcher subscribes the engine to its topics and routes decoded
// events to trigger matching and step interpretation, deduplicating
// redeliveries through the idempotency store.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyage-hq/voyage/pkg/eventbus"
	"github.com/voyage-hq/voyage/pkg/events"
	"github.com/voyage-hq/voyage/pkg/execution"
	"github.com/voyage-hq/voyage/pkg/idempotency"
	"github.com/voyage-hq/voyage/pkg/models"
	"github.com/voyage-hq/voyage/pkg/otelhelper"
	"github.com/voyage-hq/voyage/pkg/trigger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Dispatcher struct {
	eventBus eventbus.EventBus
	matcher  *trigger.Matcher
	executor *execution.Executor
	store    idempotency.Store
	tracer   trace.Tracer
	logger   *slog.Logger
}

func NewDispatcher(eventBus eventbus.EventBus, matcher *trigger.Matcher, executor *execution.Executor, store idempotency.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		eventBus: eventBus,
		matcher:  matcher,
		executor: executor,
		store:    store,
		tracer:   otel.Tracer("dispatcher"),
		logger:   logger.With("module", "dispatcher"),
	}
}

// Start registers all handlers and begins consuming. It blocks until the
// context is canceled.
func (d *Dispatcher) Start(ctx context.Context) error {
	contactHandlers := map[events.EventType]eventbus.EventHandler{
		events.ContactCreatedEvent:        d.handleContactEvent,
		events.FormSubmittedEvent:         d.handleContactEvent,
		events.MessageDeliveredEvent:      d.handleContactEvent,
		events.MessageOpenedEvent:         d.handleContactEvent,
		events.MessageClickedEvent:        d.handleContactEvent,
		events.MessageBouncedEvent:        d.handleContactEvent,
		events.ScoreChangedEvent:          d.handleContactEvent,
		events.IntentDetectedEvent:        d.handleContactEvent,
		events.ContactSegmentChangedEvent: d.handleContactEvent,
	}

	for eventType, handler := range contactHandlers {
		if err := d.eventBus.Handle(eventType, d.idempotent(handler)); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	if err := d.eventBus.Handle(events.StepAvailableEvent, d.idempotent(d.handleStepAvailable)); err != nil {
		return fmt.Errorf("failed to register step handler: %w", err)
	}

	if err := d.eventBus.Handle(events.ResumeStepEvent, d.idempotent(d.handleResumeStep)); err != nil {
		return fmt.Errorf("failed to register resume handler: %w", err)
	}

	d.logger.InfoContext(ctx, "Dispatcher starting")

	return d.eventBus.Subscribe(ctx)
}

// idempotent wraps a handler with the seen/record protocol. The key is
// recorded only after the handler succeeds; a crash in between redelivers
// the event, which is the at-least-once contract the handlers tolerate.
func (d *Dispatcher) idempotent(handler eventbus.EventHandler) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatcher.handle")
		defer span.End()

		keyed, ok := event.(interface{ EventKey() string })
		if !ok {
			return d.traced(ctx, span, handler, event)
		}

		key := keyed.EventKey()
		if key == "" {
			return d.traced(ctx, span, handler, event)
		}

		span.SetAttributes(attribute.String(otelhelper.EventIDKey, key))

		seen, err := d.store.Seen(ctx, key)
		if err != nil {
			err = fmt.Errorf("failed to probe idempotency key: %w", err)
			otelhelper.SetError(span, err)

			return err
		}

		if seen {
			d.logger.DebugContext(ctx, "Dropping duplicate event", "key", key)

			return nil
		}

		if err := d.traced(ctx, span, handler, event); err != nil {
			return err
		}

		if err := d.store.Record(ctx, key); err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		return nil
	}
}

func (d *Dispatcher) traced(ctx context.Context, span trace.Span, handler eventbus.EventHandler, event any) error {
	err := handler(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return err
}

// handleContactEvent translates a consumed contact event into a trigger
// match pass and resumes any until_event delay waiting on it.
func (d *Dispatcher) handleContactEvent(ctx context.Context, raw any) error {
	triggerEvent, ok := translate(raw)
	if !ok {
		d.logger.WarnContext(ctx, "Dropping untranslatable contact event", "type", fmt.Sprintf("%T", raw))

		return nil
	}

	started, err := d.matcher.Match(ctx, triggerEvent)
	if err != nil {
		return err
	}

	for _, event := range started {
		if err := d.eventBus.Publish(ctx, triggerEvent.ContactID, event); err != nil {
			return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
		}
	}

	return d.executor.ResumeWaiting(ctx, triggerEvent.OrganizationID, triggerEvent.ContactID, triggerEvent.Name, triggerEvent.Payload)
}

func (d *Dispatcher) handleStepAvailable(ctx context.Context, raw any) error {
	event, ok := raw.(*events.StepAvailable)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for step available", raw)
	}

	return d.executor.HandleStepAvailable(ctx, *event)
}

func (d *Dispatcher) handleResumeStep(ctx context.Context, raw any) error {
	event, ok := raw.(*events.ResumeStep)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for resume step", raw)
	}

	return d.executor.HandleResume(ctx, *event)
}

// translate maps each consumed event type onto the trigger category it can
// start and the payload its predicates read.
func translate(raw any) (trigger.Event, bool) {
	switch e := raw.(type) {
	case *events.ContactCreated:
		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, e.Payload), true
	case *events.FormSubmitted:
		payload := map[string]any{"form_id": e.FormID}
		for field, value := range e.Fields {
			payload[field] = value
		}

		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, payload), true
	case *events.MessageDelivered:
		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, messagePayload(e.MessageFeedback)), true
	case *events.MessageOpened:
		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, messagePayload(e.MessageFeedback)), true
	case *events.MessageClicked:
		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, messagePayload(e.MessageFeedback)), true
	case *events.MessageBounced:
		return contactTrigger(e.BaseEvent, models.TriggerTypeEvent, messagePayload(e.MessageFeedback)), true
	case *events.ScoreChanged:
		return contactTrigger(e.BaseEvent, models.TriggerTypeScoreThreshold, map[string]any{
			"score":          e.Score,
			"previous_score": e.PreviousScore,
		}), true
	case *events.IntentDetected:
		return contactTrigger(e.BaseEvent, models.TriggerTypeIntentSignal, map[string]any{
			"intent_type": e.IntentType,
			"strength":    e.Strength,
		}), true
	case *events.ContactSegmentChanged:
		return contactTrigger(e.BaseEvent, models.TriggerTypeSegment, map[string]any{
			"segment_id": e.SegmentID,
			"entered":    e.Entered,
		}), true
	default:
		return trigger.Event{}, false
	}
}

func contactTrigger(base events.BaseEvent, category models.TriggerType, payload map[string]any) trigger.Event {
	timestamp := base.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return trigger.Event{
		Category:       category,
		Name:           string(base.Type),
		OrganizationID: base.OrganizationID,
		ContactID:      base.ContactID,
		Payload:        payload,
		Timestamp:      timestamp,
	}
}

func messagePayload(feedback events.MessageFeedback) map[string]any {
	return map[string]any{
		"channel":    feedback.Channel,
		"message_id": feedback.MessageID,
	}
}
