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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// scope is a chain of variable frames; `for` and `set` push/shadow entries
// without mutating the parent frame.
type scope struct {
	vars   map[string]any
	parent *scope
}

func newScope(root map[string]any) *scope {
	return &scope{vars: root}
}

func (s *scope) child() *scope {
	return &scope{vars: map[string]any{}, parent: s}
}

func (s *scope) lookup(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) set(name string, v any) {
	s.vars[name] = v
}

func lookupMember(base any, name string) (any, error) {
	switch b := base.(type) {
	case map[string]any:
		return b[name], nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: cannot access member %q of %T", ErrTemplate, name, base)
	}
}

func lookupIndex(base any, idx int) (any, error) {
	switch b := base.(type) {
	case []any:
		if idx < 0 {
			idx += len(b)
		}
		if idx < 0 || idx >= len(b) {
			return nil, nil
		}
		return b[idx], nil
	case string:
		r := []rune(b)
		if idx < 0 {
			idx += len(r)
		}
		if idx < 0 || idx >= len(r) {
			return nil, nil
		}
		return string(r[idx]), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: cannot index into %T", ErrTemplate, base)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}

	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return as == bs
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareNumeric(op string, a, b any) (bool, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		as, aIsStr := a.(string)
		bs, bIsStr := b.(string)
		if aIsStr && bIsStr {
			switch op {
			case "<":
				return as < bs, nil
			case "<=":
				return as <= bs, nil
			case ">":
				return as > bs, nil
			case ">=":
				return as >= bs, nil
			}
		}
		return false, fmt.Errorf("%w: cannot compare %T and %T", ErrTemplate, a, b)
	}

	switch op {
	case "<":
		return af < bf, nil
	case "<=":
		return af <= bf, nil
	case ">":
		return af > bf, nil
	case ">=":
		return af >= bf, nil
	default:
		return false, fmt.Errorf("%w: unknown comparison %q", ErrTemplate, op)
	}
}

func arithmetic(op string, a, b any) (any, error) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		if op == "+" {
			if as, ok := a.(string); ok {
				return as + toDisplayString(b), nil
			}
		}
		return nil, fmt.Errorf("%w: cannot apply %q to %T and %T", ErrTemplate, op, a, b)
	}

	_, aIsInt := a.(int64)
	_, bIsInt := b.(int64)
	isInt := aIsInt && bIsInt

	var result float64
	switch op {
	case "+":
		result = af + bf
	case "-":
		result = af - bf
	case "*":
		result = af * bf
	case "/":
		if bf == 0 {
			return nil, fmt.Errorf("%w: division by zero", ErrTemplate)
		}
		result = af / bf
		isInt = false
	case "%":
		if bf == 0 {
			return nil, fmt.Errorf("%w: modulo by zero", ErrTemplate)
		}
		result = float64(int64(af) % int64(bf))
	default:
		return nil, fmt.Errorf("%w: unknown arithmetic operator %q", ErrTemplate, op)
	}

	if isInt {
		return int64(result), nil
	}
	return result, nil
}

func membership(needle, haystack any) bool {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true
			}
		}
		return false
	case string:
		n, ok := needle.(string)
		return ok && strings.Contains(h, n)
	case map[string]any:
		n, ok := needle.(string)
		if !ok {
			return false
		}
		_, exists := h[n]
		return exists
	default:
		return false
	}
}

// toDisplayString renders v the way {{ v }} would.
func toDisplayString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = toDisplayString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		b, err := toJSON(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// toJSON renders v as JSON with deterministic map key ordering.
func toJSON(v any) ([]byte, error) {
	return marshalOrdered(v)
}

func marshalOrdered(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := marshalOrdered(t[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			vb, err := marshalOrdered(item)
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(t)
	}
}
