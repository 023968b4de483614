package executor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"blockflow/internal/models"
)

// conditionHandler evaluates a two-way branch. The decision is reported as the
// string "true" or "false" in the output; path tracking activates the matching
// condition-true/condition-false edge.
type conditionHandler struct{}

func (h *conditionHandler) CanHandle(block models.Block) bool {
	return block.Metadata.ID == models.BlockTypeCondition
}

func (h *conditionHandler) Execute(_ context.Context, block models.Block, scope *runScope) (map[string]any, error) {
	params := scope.resolvedParams(block)

	field := params["field"]
	if raw, ok := block.Config.Params["field"].(string); ok && field == raw && strings.Contains(raw, ".") {
		// An uninterpolated plain path like "block1.response.count" still
		// resolves against the scope.
		if v := ResolvePath(scope.templateScope(block), StripTemplateBraces(raw)); v != nil {
			field = v
		}
	}

	operator := paramString(params, "operator", "truthy")
	expected := params["value"]

	result, err := evaluateCondition(field, operator, expected)
	if err != nil {
		return nil, fmt.Errorf("condition %s: %w", block.ID, err)
	}

	decision := "false"
	if result {
		decision = "true"
	}
	log.Printf("❓ [CONDITION] Block '%s': %v %s %v → %s", block.ID, field, operator, expected, decision)
	return map[string]any{
		outputKeyConditionResult: decision,
		"field":                  field,
		"operator":               operator,
		"value":                  expected,
	}, nil
}

// evaluateCondition applies one comparison operator. Numeric comparisons
// coerce both sides through toFloat; string operators stringify.
func evaluateCondition(actual any, operator string, expected any) (bool, error) {
	switch operator {
	case "truthy", "":
		return isTruthy(actual), nil
	case "equals", "eq", "==":
		return stringify(actual) == stringify(expected), nil
	case "not_equals", "neq", "!=":
		return stringify(actual) != stringify(expected), nil
	case "greater_than", "gt", ">":
		return toFloat(actual) > toFloat(expected), nil
	case "greater_than_or_equal", "gte", ">=":
		return toFloat(actual) >= toFloat(expected), nil
	case "less_than", "lt", "<":
		return toFloat(actual) < toFloat(expected), nil
	case "less_than_or_equal", "lte", "<=":
		return toFloat(actual) <= toFloat(expected), nil
	case "contains":
		return strings.Contains(stringify(actual), stringify(expected)), nil
	case "not_contains":
		return !strings.Contains(stringify(actual), stringify(expected)), nil
	case "starts_with":
		return strings.HasPrefix(stringify(actual), stringify(expected)), nil
	case "ends_with":
		return strings.HasSuffix(stringify(actual), stringify(expected)), nil
	case "is_empty":
		return isEmptyValue(actual), nil
	case "is_not_empty":
		return !isEmptyValue(actual), nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

func isEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
