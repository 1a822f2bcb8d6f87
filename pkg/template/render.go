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
	"strings"
)

// Render renders t over context, which must be the result of decoding a JSON
// object (map[string]any, with nested map[string]any / []any / string /
// float64 / bool / nil values).
func (t *Template) Render(context map[string]any) (string, error) {
	var sb strings.Builder
	s := newScope(context)

	if err := renderNodes(t.root, s, &sb); err != nil {
		return "", err
	}

	return sb.String(), nil
}

func renderNodes(nodes []node, s *scope, sb *strings.Builder) error {
	for _, n := range nodes {
		if err := renderNode(n, s, sb); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(n node, s *scope, sb *strings.Builder) error {
	switch t := n.(type) {
	case *textNode:
		sb.WriteString(t.text)
		return nil

	case *varNode:
		v, err := t.expr.eval(s)
		if err != nil {
			return err
		}
		sb.WriteString(toDisplayString(v))
		return nil

	case *ifNode:
		for _, branch := range t.branches {
			if branch.cond == nil {
				return renderNodes(branch.body, s, sb)
			}
			v, err := branch.cond.eval(s)
			if err != nil {
				return err
			}
			if truthy(v) {
				return renderNodes(branch.body, s, sb)
			}
		}
		return nil

	case *forNode:
		iterable, err := t.iter.eval(s)
		if err != nil {
			return err
		}
		items, err := toIterable(iterable)
		if err != nil {
			return err
		}

		for idx, item := range items {
			child := s.child()
			child.set(t.varName, item)
			child.set("loop", loopObject(idx, len(items)))
			if err := renderNodes(t.body, child, sb); err != nil {
				return err
			}
		}
		return nil

	case *setNode:
		v, err := t.value.eval(s)
		if err != nil {
			return err
		}
		s.set(t.varName, v)
		return nil

	default:
		return fmt.Errorf("%w: unsupported node type %T", ErrTemplate, n)
	}
}

func toIterable(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case nil:
		return nil, nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: cannot iterate over %T", ErrTemplate, v)
	}
}
