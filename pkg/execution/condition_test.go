package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyage-hq/voyage/pkg/models"
)

func TestEvaluateCondition(t *testing.T) {
	state := map[string]any{
		"score":   float64(72),
		"channel": "email",
		"count":   3,
	}

	tests := []struct {
		name     string
		field    string
		operator string
		value    any
		expected bool
	}{
		{name: "exists present", field: "score", operator: "exists", expected: true},
		{name: "exists missing", field: "ghost", operator: "exists", expected: false},
		{name: "eq string match", field: "channel", operator: "eq", value: "email", expected: true},
		{name: "eq string mismatch", field: "channel", operator: "eq", value: "sms", expected: false},
		{name: "eq numeric across types", field: "count", operator: "eq", value: float64(3), expected: true},
		{name: "neq", field: "channel", operator: "neq", value: "sms", expected: true},
		{name: "gt true", field: "score", operator: "gt", value: 70, expected: true},
		{name: "gt false at boundary", field: "score", operator: "gt", value: 72, expected: false},
		{name: "gte at boundary", field: "score", operator: "gte", value: 72, expected: true},
		{name: "lt", field: "score", operator: "lt", value: 100, expected: true},
		{name: "lte below", field: "score", operator: "lte", value: 50, expected: false},
		{name: "missing field is false for gt", field: "ghost", operator: "gt", value: 1, expected: false},
		{name: "missing field is false for eq", field: "ghost", operator: "eq", value: "x", expected: false},
		{name: "non-numeric actual is false", field: "channel", operator: "gt", value: 1, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := evaluateCondition(&models.ConditionConfig{
				Field:    tt.field,
				Operator: tt.operator,
				Value:    tt.value,
			}, state)

			require.NoError(t, err)
			assert.Equal(t, tt.expected, matched)
		})
	}
}

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	_, err := evaluateCondition(&models.ConditionConfig{Field: "score", Operator: "near"}, map[string]any{"score": 1})

	assert.Error(t, err)
}

func TestEvaluateCondition_NonNumericExpected(t *testing.T) {
	_, err := evaluateCondition(&models.ConditionConfig{Field: "score", Operator: "gt", Value: "high"}, map[string]any{"score": 1})

	assert.Error(t, err)
}
