package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/voyage-hq/voyage/pkg/models"
)

func TestValidateStepConfig(t *testing.T) {
	tests := []struct {
		name     string
		stepType models.StepType
		config   map[string]any
		wantErr  bool
	}{
		{
			name:     "valid action",
			stepType: models.StepTypeAction,
			config:   map[string]any{"kind": "send_message", "template_id": "tpl-1", "channel": "email"},
		},
		{
			name:     "action without kind",
			stepType: models.StepTypeAction,
			config:   map[string]any{"template_id": "tpl-1"},
			wantErr:  true,
		},
		{
			name:     "action with unknown kind",
			stepType: models.StepTypeAction,
			config:   map[string]any{"kind": "launch_rocket"},
			wantErr:  true,
		},
		{
			name:     "valid condition",
			stepType: models.StepTypeCondition,
			config:   map[string]any{"field": "score", "operator": "gte", "value": 50},
		},
		{
			name:     "condition with bad operator",
			stepType: models.StepTypeCondition,
			config:   map[string]any{"field": "score", "operator": "near"},
			wantErr:  true,
		},
		{
			name:     "condition missing field",
			stepType: models.StepTypeCondition,
			config:   map[string]any{"operator": "exists"},
			wantErr:  true,
		},
		{
			name:     "valid duration delay",
			stepType: models.StepTypeDelay,
			config:   map[string]any{"mode": "duration", "duration": "24h"},
		},
		{
			name:     "valid time of day delay",
			stepType: models.StepTypeDelay,
			config:   map[string]any{"mode": "time_of_day", "time_of_day": "09:30"},
		},
		{
			name:     "delay with malformed time of day",
			stepType: models.StepTypeDelay,
			config:   map[string]any{"mode": "time_of_day", "time_of_day": "25:99"},
			wantErr:  true,
		},
		{
			name:     "delay missing mode",
			stepType: models.StepTypeDelay,
			config:   map[string]any{"duration": "24h"},
			wantErr:  true,
		},
		{
			name:     "trigger accepts empty config",
			stepType: models.StepTypeTrigger,
			config:   nil,
		},
		{
			name:     "split accepts empty config",
			stepType: models.StepTypeSplit,
			config:   map[string]any{},
		},
		{
			name:     "unknown step type",
			stepType: "loop",
			config:   map[string]any{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ValidateStepConfig(tt.stepType, tt.config)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTriggerConfig(t *testing.T) {
	tests := []struct {
		name        string
		triggerType models.TriggerType
		config      map[string]any
		wantErr     bool
	}{
		{
			name:        "valid event trigger",
			triggerType: models.TriggerTypeEvent,
			config:      map[string]any{"event_type": "form.submitted", "filters": map[string]any{"form_id": "f-1"}},
		},
		{
			name:        "event trigger missing event type",
			triggerType: models.TriggerTypeEvent,
			config:      map[string]any{"filters": map[string]any{}},
			wantErr:     true,
		},
		{
			name:        "valid segment trigger",
			triggerType: models.TriggerTypeSegment,
			config:      map[string]any{"segment_id": "seg-1", "direction": "entered"},
		},
		{
			name:        "segment trigger with bad direction",
			triggerType: models.TriggerTypeSegment,
			config:      map[string]any{"segment_id": "seg-1", "direction": "sideways"},
			wantErr:     true,
		},
		{
			name:        "valid score threshold trigger",
			triggerType: models.TriggerTypeScoreThreshold,
			config:      map[string]any{"operator": "gte", "threshold": 80},
		},
		{
			name:        "score threshold missing operator",
			triggerType: models.TriggerTypeScoreThreshold,
			config:      map[string]any{"threshold": 80},
			wantErr:     true,
		},
		{
			name:        "valid intent signal trigger",
			triggerType: models.TriggerTypeIntentSignal,
			config:      map[string]any{"intent_type": "pricing_page", "min_strength": 0.7},
		},
		{
			name:        "manual trigger accepts empty config",
			triggerType: models.TriggerTypeManual,
			config:      nil,
		},
		{
			name:        "scheduled trigger requires cron expression",
			triggerType: models.TriggerTypeScheduled,
			config:      map[string]any{},
			wantErr:     true,
		},
		{
			name:        "unknown trigger type",
			triggerType: "telepathy",
			config:      map[string]any{},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ValidateTriggerConfig(tt.triggerType, tt.config)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
