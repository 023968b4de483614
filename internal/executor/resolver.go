package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"blockflow/internal/models"
)

var templateRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// buildScope assembles the value namespace a block's params resolve against:
// the workflow input, environment variables, workflow variables, and the
// recorded output of every executed block (keyed by block id and by block
// name). Keys from directly connected upstream blocks are additionally
// flattened to the top level for the common {{response}} shorthand.
func (e *Executor) buildScope(ec *ExecutionContext, g *graph, blockID string) map[string]any {
	scope := make(map[string]any)

	for k, v := range ec.WorkflowInput {
		scope[k] = v
	}
	scope["input"] = ec.WorkflowInput

	env := make(map[string]any, len(ec.EnvVars))
	for k, v := range ec.EnvVars {
		env[k] = v
	}
	scope["env"] = env

	if len(ec.WorkflowVariables) > 0 {
		scope["variables"] = ec.WorkflowVariables
	}

	for k, v := range ec.Bindings {
		scope[k] = v
	}

	for id, executed := range ec.ExecutedBlocks {
		if !executed {
			continue
		}
		state := ec.BlockStates[id]
		if state == nil || state.Output == nil {
			continue
		}
		scope[id] = state.Output
		if b, ok := g.blocks[id]; ok && b.Metadata.Name != "" {
			scope[normalizeName(b.Metadata.Name)] = state.Output
		}
	}

	// Flatten the output of directly connected regular sources so templates
	// can use {{response}} instead of {{block-id.response}}.
	for _, conn := range g.incoming[blockID] {
		handle := conn.SourceHandle
		if handle != "" && handle != models.HandleSource {
			continue
		}
		if state := ec.BlockStates[conn.Source]; state != nil && state.Executed {
			for k, v := range state.Output {
				if _, taken := scope[k]; !taken {
					scope[k] = v
				}
			}
		}
	}
	return scope
}

// resolveParams interpolates every string value of a block's params against
// the scope, recursing through nested maps and slices.
func resolveParams(params map[string]any, scope map[string]any) map[string]any {
	resolved := make(map[string]any, len(params))
	for k, v := range params {
		resolved[k] = resolveValue(v, scope)
	}
	return resolved
}

func resolveValue(value any, scope map[string]any) any {
	switch v := value.(type) {
	case string:
		// A template that is the whole string resolves to the raw value, so
		// non-string outputs (maps, arrays, numbers) survive untouched.
		if m := templateRe.FindStringSubmatch(v); m != nil && m[0] == strings.TrimSpace(v) {
			if resolved := ResolvePath(scope, strings.TrimSpace(m[1])); resolved != nil {
				return resolved
			}
		}
		return InterpolateTemplate(v, scope)
	case map[string]any:
		return resolveParams(v, scope)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = resolveValue(elem, scope)
		}
		return out
	default:
		return value
	}
}

// InterpolateTemplate replaces {{path.to.value}} placeholders with values
// resolved from scope. Unresolvable placeholders are kept verbatim.
func InterpolateTemplate(template string, scope map[string]any) string {
	if template == "" {
		return ""
	}
	return templateRe.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(match, "{{"), "}}"))
		value := ResolvePath(scope, path)
		if value == nil {
			return match
		}
		return stringify(value)
	})
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// ResolvePath walks a dot-notation path through nested maps and slices.
// Supports field access (a.b.c), bracket indexing (items[0].name) and
// dot-notation numeric indexing (items.0.name). Returns nil when any segment
// is missing.
func ResolvePath(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		if current == nil {
			return nil
		}
		field := part
		index := -1
		if open := strings.Index(part, "["); open != -1 && strings.HasSuffix(part, "]") {
			field = part[:open]
			if n, err := strconv.Atoi(part[open+1 : len(part)-1]); err == nil {
				index = n
			} else {
				return nil
			}
		}

		if field != "" {
			m, ok := current.(map[string]any)
			if !ok {
				// Dot-notation numeric index into a slice.
				if arr, isArr := current.([]any); isArr {
					if n, err := strconv.Atoi(field); err == nil && n >= 0 && n < len(arr) {
						current = arr[n]
						continue
					}
				}
				return nil
			}
			val, exists := m[field]
			if !exists {
				return nil
			}
			current = val
		}

		if index >= 0 {
			arr, ok := current.([]any)
			if !ok || index >= len(arr) {
				return nil
			}
			current = arr[index]
		}
	}
	return current
}

// StripTemplateBraces removes a {{ }} wrapper from a path string, leaving
// non-template strings unchanged.
func StripTemplateBraces(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{{") && strings.HasSuffix(s, "}}") {
		return strings.TrimSpace(s[2 : len(s)-2])
	}
	return s
}

// normalizeName lowercases a display name and replaces whitespace with
// hyphens so "Search News" is addressable as {{search-news.response}}.
func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Param readers. Block configs are duck-typed JSON; these keep the type
// coercion in one place.

func paramString(params map[string]any, key, defaultVal string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

func paramInt(params map[string]any, key string, defaultVal int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return defaultVal
}

func paramBool(params map[string]any, key string, defaultVal bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func toFloat(v any) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case int:
		return float64(f)
	case int64:
		return float64(f)
	case string:
		parsed, _ := strconv.ParseFloat(strings.TrimSpace(f), 64)
		return parsed
	default:
		return 0
	}
}

func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != "" && strings.ToLower(val) != "false" && val != "0"
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}
