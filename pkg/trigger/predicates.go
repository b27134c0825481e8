package trigger

import (
	"fmt"

	"github.com/voyage-hq/voyage/pkg/models"
)

// evaluate applies the trigger's predicate to the event payload.
func (m *Matcher) evaluate(trigger *models.Trigger, event Event) (bool, error) {
	switch trigger.Type {
	case models.TriggerTypeScoreThreshold:
		return m.evaluateScoreThreshold(trigger, event)
	case models.TriggerTypeIntentSignal:
		return m.evaluateIntentSignal(trigger, event)
	case models.TriggerTypeSegment:
		return m.evaluateSegment(trigger, event)
	case models.TriggerTypeEvent:
		return m.evaluateEvent(trigger, event)
	default:
		return false, fmt.Errorf("trigger type %s is not event-matchable", trigger.Type)
	}
}

func (m *Matcher) evaluateScoreThreshold(trigger *models.Trigger, event Event) (bool, error) {
	config, err := models.DecodeScoreThresholdConfig(trigger.Config)
	if err != nil {
		return false, err
	}

	score, ok := payloadNumber(event.Payload, "score")
	if !ok {
		return false, nil
	}

	switch config.Operator {
	case "gte":
		return score >= config.Threshold, nil
	case "lte":
		return score <= config.Threshold, nil
	case "gt":
		return score > config.Threshold, nil
	case "lt":
		return score < config.Threshold, nil
	case "eq":
		return score == config.Threshold, nil
	default:
		return false, fmt.Errorf("unknown score threshold operator %q", config.Operator)
	}
}

func (m *Matcher) evaluateIntentSignal(trigger *models.Trigger, event Event) (bool, error) {
	config, err := models.DecodeIntentSignalConfig(trigger.Config)
	if err != nil {
		return false, err
	}

	intentType, _ := event.Payload["intent_type"].(string)
	if intentType != config.IntentType {
		return false, nil
	}

	strength, ok := payloadNumber(event.Payload, "strength")
	if !ok {
		return false, nil
	}

	return strength >= config.MinStrength, nil
}

func (m *Matcher) evaluateSegment(trigger *models.Trigger, event Event) (bool, error) {
	config, err := models.DecodeSegmentTriggerConfig(trigger.Config)
	if err != nil {
		return false, err
	}

	segmentID, _ := event.Payload["segment_id"].(string)
	if segmentID != config.SegmentID {
		return false, nil
	}

	entered, _ := event.Payload["entered"].(bool)

	switch config.Direction {
	case "entered":
		return entered, nil
	case "exited":
		return !entered, nil
	default:
		return false, fmt.Errorf("unknown segment direction %q", config.Direction)
	}
}

func (m *Matcher) evaluateEvent(trigger *models.Trigger, event Event) (bool, error) {
	config, err := models.DecodeEventTriggerConfig(trigger.Config)
	if err != nil {
		return false, err
	}

	if event.Name != config.EventType {
		return false, nil
	}

	for field, expected := range config.Filters {
		actual, ok := event.Payload[field]
		if !ok {
			return false, nil
		}

		if fmt.Sprintf("%v", actual) != fmt.Sprintf("%v", expected) {
			return false, nil
		}
	}

	return true, nil
}

// payloadNumber extracts a numeric payload field, tolerating the int/float
// variance of decoded JSON.
func payloadNumber(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
