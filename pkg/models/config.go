package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Step and trigger configs are stored as dynamic JSON blobs and validated
// against per-type schemas at the boundary (see schema.go). Internally the
// engine works with the strongly-typed structs below.

var (
	ErrUnknownStepType    = errors.New("unknown step type")
	ErrUnknownTriggerType = errors.New("unknown trigger type")
)

// ActionKind identifies the side-effect command an action step enqueues.
type ActionKind string

const (
	ActionKindSendMessage      ActionKind = "send_message"
	ActionKindAwardPoints      ActionKind = "award_points"
	ActionKindCallWebhook      ActionKind = "call_webhook"
	ActionKindEnrollInSequence ActionKind = "enroll_in_sequence"
)

// ActionConfig configures an action step. Only the fields relevant to the
// configured kind are consulted.
type ActionConfig struct {
	Kind       ActionKind `json:"kind"`
	TemplateID string     `json:"template_id,omitempty"`
	Channel    string     `json:"channel,omitempty"`
	Points     int        `json:"points,omitempty"`
	URL        string     `json:"url,omitempty"`
	SequenceID string     `json:"sequence_id,omitempty"`
}

// ConditionConfig configures a condition step: a boolean predicate over the
// contact/event state available to the execution.
type ConditionConfig struct {
	Field    string `json:"field"`
	Operator string `json:"operator"` // eq, neq, gt, gte, lt, lte, exists
	Value    any    `json:"value,omitempty"`
}

// DelayMode selects how a delay step computes its resume time.
type DelayMode string

const (
	DelayModeDuration   DelayMode = "duration"    // resume after a fixed duration
	DelayModeTimeOfDay  DelayMode = "time_of_day" // resume at the next occurrence of HH:MM
	DelayModeUntilEvent DelayMode = "until_event" // resume when a matching event arrives
)

// DelayConfig configures a delay step.
type DelayConfig struct {
	Mode      DelayMode `json:"mode"`
	Duration  string    `json:"duration,omitempty"`    // Go duration string, e.g. "48h"
	TimeOfDay string    `json:"time_of_day,omitempty"` // "HH:MM", 24h clock
	EventType string    `json:"event_type,omitempty"`  // for until_event mode
}

// ResumeAt computes when the execution should resume, relative to now.
// For until_event mode there is no target time; the second return value is
// false and the step stays parked until the configured event arrives.
func (c *DelayConfig) ResumeAt(now time.Time) (time.Time, bool, error) {
	switch c.Mode {
	case DelayModeDuration:
		d, err := time.ParseDuration(c.Duration)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid delay duration %q: %w", c.Duration, err)
		}

		return now.Add(d), true, nil
	case DelayModeTimeOfDay:
		var hour, minute int

		_, err := fmt.Sscanf(c.TimeOfDay, "%d:%d", &hour, &minute)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid time of day %q: %w", c.TimeOfDay, err)
		}

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

		schedule, err := parser.Parse(fmt.Sprintf("%d %d * * *", minute, hour))
		if err != nil {
			return time.Time{}, false, fmt.Errorf("invalid time of day %q: %w", c.TimeOfDay, err)
		}

		return schedule.Next(now), true, nil
	case DelayModeUntilEvent:
		return time.Time{}, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown delay mode %q", c.Mode)
	}
}

// EventTriggerConfig matches events by name, with optional payload field filters.
type EventTriggerConfig struct {
	EventType string         `json:"event_type"`
	Filters   map[string]any `json:"filters,omitempty"`
}

// ScoreThresholdConfig applies a comparison operator to the contact's score.
type ScoreThresholdConfig struct {
	Operator  string  `json:"operator"` // gte, lte, gt, lt, eq
	Threshold float64 `json:"threshold"`
}

// IntentSignalConfig matches intent events of a given type at or above a
// minimum strength.
type IntentSignalConfig struct {
	IntentType  string  `json:"intent_type"`
	MinStrength float64 `json:"min_strength"`
}

// SegmentTriggerConfig matches segment membership changes.
type SegmentTriggerConfig struct {
	SegmentID string `json:"segment_id"`
	Direction string `json:"direction"` // entered or exited
}

// ScheduledTriggerConfig fires on a cron expression for an explicit list of
// contacts.
type ScheduledTriggerConfig struct {
	CronExpression string   `json:"cron_expression"`
	ContactIDs     []string `json:"contact_ids"`
}

// NextOccurrence returns the first cron occurrence strictly after the given
// time.
func (c *ScheduledTriggerConfig) NextOccurrence(after time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(c.CronExpression)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", c.CronExpression, err)
	}

	return schedule.Next(after), nil
}

func decodeConfig(config map[string]any, out any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	return nil
}

// DecodeActionConfig decodes an action step's config map.
func DecodeActionConfig(config map[string]any) (*ActionConfig, error) {
	out := &ActionConfig{}

	return out, decodeConfig(config, out)
}

// DecodeConditionConfig decodes a condition step's config map.
func DecodeConditionConfig(config map[string]any) (*ConditionConfig, error) {
	out := &ConditionConfig{}

	return out, decodeConfig(config, out)
}

// DecodeDelayConfig decodes a delay step's config map.
func DecodeDelayConfig(config map[string]any) (*DelayConfig, error) {
	out := &DelayConfig{}

	return out, decodeConfig(config, out)
}

// DecodeEventTriggerConfig decodes an event trigger's config map.
func DecodeEventTriggerConfig(config map[string]any) (*EventTriggerConfig, error) {
	out := &EventTriggerConfig{}

	return out, decodeConfig(config, out)
}

// DecodeScoreThresholdConfig decodes a score_threshold trigger's config map.
func DecodeScoreThresholdConfig(config map[string]any) (*ScoreThresholdConfig, error) {
	out := &ScoreThresholdConfig{}

	return out, decodeConfig(config, out)
}

// DecodeIntentSignalConfig decodes an intent_signal trigger's config map.
func DecodeIntentSignalConfig(config map[string]any) (*IntentSignalConfig, error) {
	out := &IntentSignalConfig{}

	return out, decodeConfig(config, out)
}

// DecodeScheduledTriggerConfig decodes a scheduled trigger's config map.
func DecodeScheduledTriggerConfig(config map[string]any) (*ScheduledTriggerConfig, error) {
	out := &ScheduledTriggerConfig{}

	return out, decodeConfig(config, out)
}

// DecodeSegmentTriggerConfig decodes a segment trigger's config map.
func DecodeSegmentTriggerConfig(config map[string]any) (*SegmentTriggerConfig, error) {
	out := &SegmentTriggerConfig{}

	return out, decodeConfig(config, out)
}
