package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// FunctionTool backs function blocks with data-shaping operations over
// resolved inputs: aggregation, concatenation, merging and field picking.
// Params: operation (required), values (list) or value, separator, path.
type FunctionTool struct{}

func (FunctionTool) ID() string { return "function_execute" }

func (FunctionTool) Execute(_ context.Context, params map[string]any) (map[string]any, error) {
	operation, _ := params["operation"].(string)
	values, _ := params["values"].([]any)

	switch operation {
	case "sum", "average", "min", "max":
		nums, err := numericValues(values)
		if err != nil {
			return nil, fmt.Errorf("function_execute %s: %w", operation, err)
		}
		return map[string]any{"response": aggregate(operation, nums)}, nil

	case "count":
		return map[string]any{"response": len(values)}, nil

	case "concat":
		separator, _ := params["separator"].(string)
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = fmt.Sprintf("%v", v)
		}
		return map[string]any{"response": strings.Join(parts, separator)}, nil

	case "merge":
		merged := make(map[string]any)
		for _, v := range values {
			m, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("function_execute merge: values must be objects, got %T", v)
			}
			for k, val := range m {
				merged[k] = val
			}
		}
		return map[string]any{"response": merged}, nil

	case "pick":
		path, _ := params["path"].(string)
		source, ok := params["value"].(map[string]any)
		if !ok || path == "" {
			return nil, fmt.Errorf("function_execute pick requires value (object) and path")
		}
		return map[string]any{"response": pickPath(source, path)}, nil

	case "":
		return nil, fmt.Errorf("function_execute requires an operation")
	default:
		return nil, fmt.Errorf("function_execute: unknown operation %q", operation)
	}
}

func numericValues(values []any) ([]float64, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values")
	}
	nums := make([]float64, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case float64:
			nums[i] = n
		case int:
			nums[i] = float64(n)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not numeric", n)
			}
			nums[i] = parsed
		default:
			return nil, fmt.Errorf("value %v (%T) is not numeric", v, v)
		}
	}
	return nums, nil
}

func aggregate(operation string, nums []float64) float64 {
	result := nums[0]
	for _, n := range nums[1:] {
		switch operation {
		case "sum", "average":
			result += n
		case "min":
			if n < result {
				result = n
			}
		case "max":
			if n > result {
				result = n
			}
		}
	}
	if operation == "average" {
		result /= float64(len(nums))
	}
	return result
}

func pickPath(source map[string]any, path string) any {
	var current any = source
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
