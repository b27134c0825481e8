package execution

import (
	"fmt"

	"github.com/voyage-hq/voyage/pkg/models"
)

// evaluateCondition applies a condition step's predicate to the execution
// state. A missing field is false for every operator except exists.
func evaluateCondition(config *models.ConditionConfig, state map[string]any) (bool, error) {
	value, present := state[config.Field]

	switch config.Operator {
	case "exists":
		return present, nil
	case "eq":
		return present && fmt.Sprintf("%v", value) == fmt.Sprintf("%v", config.Value), nil
	case "neq":
		return present && fmt.Sprintf("%v", value) != fmt.Sprintf("%v", config.Value), nil
	case "gt", "gte", "lt", "lte":
		if !present {
			return false, nil
		}

		return compareNumbers(config.Operator, value, config.Value)
	default:
		return false, fmt.Errorf("unknown condition operator %q", config.Operator)
	}
}

func compareNumbers(operator string, actual, expected any) (bool, error) {
	left, ok := asNumber(actual)
	if !ok {
		return false, nil
	}

	right, ok := asNumber(expected)
	if !ok {
		return false, fmt.Errorf("condition value %v is not numeric", expected)
	}

	switch operator {
	case "gt":
		return left > right, nil
	case "gte":
		return left >= right, nil
	case "lt":
		return left < right, nil
	case "lte":
		return left <= right, nil
	default:
		return false, fmt.Errorf("unknown condition operator %q", operator)
	}
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
