package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Per-type JSON Schemas for step and trigger configs. Configs are validated
// against these at draft-edit time and again at publish time, so the engine
// only ever interprets well-formed config blobs.

var ErrConfigSchema = errors.New("config does not match schema")

var stepConfigSchemas = map[StepType]string{
	StepTypeTrigger: `{
		"type": "object"
	}`,
	StepTypeAction: `{
		"type": "object",
		"properties": {
			"kind": {"type": "string", "enum": ["send_message", "award_points", "call_webhook", "enroll_in_sequence"]},
			"template_id": {"type": "string"},
			"channel": {"type": "string"},
			"points": {"type": "integer", "minimum": 0},
			"url": {"type": "string"},
			"sequence_id": {"type": "string"}
		},
		"required": ["kind"]
	}`,
	StepTypeCondition: `{
		"type": "object",
		"properties": {
			"field": {"type": "string", "minLength": 1},
			"operator": {"type": "string", "enum": ["eq", "neq", "gt", "gte", "lt", "lte", "exists"]},
			"value": {}
		},
		"required": ["field", "operator"]
	}`,
	StepTypeDelay: `{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["duration", "time_of_day", "until_event"]},
			"duration": {"type": "string"},
			"time_of_day": {"type": "string", "pattern": "^([01]?[0-9]|2[0-3]):[0-5][0-9]$"},
			"event_type": {"type": "string"}
		},
		"required": ["mode"]
	}`,
	StepTypeSplit: `{
		"type": "object"
	}`,
}

var triggerConfigSchemas = map[TriggerType]string{
	TriggerTypeEvent: `{
		"type": "object",
		"properties": {
			"event_type": {"type": "string", "minLength": 1},
			"filters": {"type": "object"}
		},
		"required": ["event_type"]
	}`,
	TriggerTypeSegment: `{
		"type": "object",
		"properties": {
			"segment_id": {"type": "string", "minLength": 1},
			"direction": {"type": "string", "enum": ["entered", "exited"]}
		},
		"required": ["segment_id", "direction"]
	}`,
	TriggerTypeManual: `{
		"type": "object"
	}`,
	TriggerTypeScheduled: `{
		"type": "object",
		"properties": {
			"cron_expression": {"type": "string", "minLength": 1},
			"contact_ids": {"type": "array", "items": {"type": "string", "minLength": 1}}
		},
		"required": ["cron_expression"]
	}`,
	TriggerTypeScoreThreshold: `{
		"type": "object",
		"properties": {
			"operator": {"type": "string", "enum": ["gte", "lte", "gt", "lt", "eq"]},
			"threshold": {"type": "number"}
		},
		"required": ["operator", "threshold"]
	}`,
	TriggerTypeIntentSignal: `{
		"type": "object",
		"properties": {
			"intent_type": {"type": "string", "minLength": 1},
			"min_strength": {"type": "number", "minimum": 0}
		},
		"required": ["intent_type"]
	}`,
}

// ValidateStepConfig validates a step's config blob against the schema for
// its type.
func ValidateStepConfig(stepType StepType, config map[string]any) error {
	schema, ok := stepConfigSchemas[stepType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStepType, stepType)
	}

	return validateAgainstSchema(schema, config)
}

// ValidateTriggerConfig validates a trigger's config blob against the schema
// for its type.
func ValidateTriggerConfig(triggerType TriggerType, config map[string]any) error {
	schema, ok := triggerConfigSchemas[triggerType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTriggerType, triggerType)
	}

	return validateAgainstSchema(schema, config)
}

func validateAgainstSchema(schema string, config map[string]any) error {
	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrConfigSchema, strings.Join(details, "; "))
}
