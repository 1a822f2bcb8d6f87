/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package template

import (
	"fmt"
	"html"
	"strings"
)

// applyFilter implements the fixed filter set from the component design:
// trim, lower, upper, length, default, first, last, join, tojson,
// escape/e, string, int, float.
func applyFilter(name string, v any, args []any) (any, error) {
	switch name {
	case "trim":
		return strings.TrimSpace(toDisplayString(v)), nil
	case "lower":
		return strings.ToLower(toDisplayString(v)), nil
	case "upper":
		return strings.ToUpper(toDisplayString(v)), nil
	case "length":
		return int64(length(v)), nil
	case "default":
		if v == nil || (isString(v) && v.(string) == "") {
			if len(args) > 0 {
				return args[0], nil
			}
			return "", nil
		}
		return v, nil
	case "first":
		return first(v)
	case "last":
		return last(v)
	case "join":
		sep := ""
		if len(args) > 0 {
			sep = toDisplayString(args[0])
		}
		return joinSeq(v, sep)
	case "tojson":
		b, err := toJSON(v)
		if err != nil {
			return nil, fmt.Errorf("%w: tojson: %w", ErrTemplate, err)
		}
		return string(b), nil
	case "escape", "e":
		return html.EscapeString(toDisplayString(v)), nil
	case "string":
		return toDisplayString(v), nil
	case "int":
		f, ok := toFloat(v)
		if !ok {
			return int64(0), nil
		}
		return int64(f), nil
	case "float":
		f, ok := toFloat(v)
		if !ok {
			return float64(0), nil
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: unknown filter %q", ErrTemplate, name)
	}
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func length(v any) int {
	switch t := v.(type) {
	case string:
		return len([]rune(t))
	case []any:
		return len(t)
	case map[string]any:
		return len(t)
	default:
		return 0
	}
}

func first(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		return t[0], nil
	case string:
		r := []rune(t)
		if len(r) == 0 {
			return "", nil
		}
		return string(r[0]), nil
	default:
		return nil, fmt.Errorf("%w: first: unsupported type %T", ErrTemplate, v)
	}
}

func last(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		return t[len(t)-1], nil
	case string:
		r := []rune(t)
		if len(r) == 0 {
			return "", nil
		}
		return string(r[len(r)-1]), nil
	default:
		return nil, fmt.Errorf("%w: last: unsupported type %T", ErrTemplate, v)
	}
}

func joinSeq(v any, sep string) (string, error) {
	items, ok := v.([]any)
	if !ok {
		return "", fmt.Errorf("%w: join: expected a sequence, got %T", ErrTemplate, v)
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = toDisplayString(item)
	}
	return strings.Join(parts, sep), nil
}

// loopObject is exposed as `loop` inside a {% for %} body.
func loopObject(index0, length int) map[string]any {
	return map[string]any{
		"index":  int64(index0 + 1),
		"index0": int64(index0),
		"first":  index0 == 0,
		"last":   index0 == length-1,
		"length": int64(length),
	}
}
