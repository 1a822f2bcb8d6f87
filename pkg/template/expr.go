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

import "fmt"

// expr is a parsed Jinja-subset expression.
type expr interface {
	eval(scope *scope) (any, error)
}

// literalExpr wraps a constant value: string, int64, float64, bool, nil, or []any.
type literalExpr struct {
	value any
}

func (e *literalExpr) eval(*scope) (any, error) { return e.value, nil }

// identExpr looks up a variable by name.
type identExpr struct {
	name string
}

func (e *identExpr) eval(s *scope) (any, error) {
	v, _ := s.lookup(e.name)
	return v, nil
}

// attrExpr accesses base.name, falling back to map-key / struct-agnostic
// lookup since contexts here are always decoded JSON (map[string]any).
type attrExpr struct {
	base expr
	name string
}

func (e *attrExpr) eval(s *scope) (any, error) {
	base, err := e.base.eval(s)
	if err != nil {
		return nil, err
	}

	return lookupMember(base, e.name)
}

// indexExpr accesses base[index].
type indexExpr struct {
	base  expr
	index expr
}

func (e *indexExpr) eval(s *scope) (any, error) {
	base, err := e.base.eval(s)
	if err != nil {
		return nil, err
	}

	idx, err := e.index.eval(s)
	if err != nil {
		return nil, err
	}

	switch key := idx.(type) {
	case string:
		return lookupMember(base, key)
	case int64:
		return lookupIndex(base, int(key))
	case float64:
		return lookupIndex(base, int(key))
	default:
		return nil, fmt.Errorf("%w: unsupported index type %T", ErrTemplate, idx)
	}
}

// unaryExpr applies `not` or unary `-`.
type unaryExpr struct {
	op      string
	operand expr
}

func (e *unaryExpr) eval(s *scope) (any, error) {
	v, err := e.operand.eval(s)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case "not":
		return !truthy(v), nil
	case "-":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: cannot negate %T", ErrTemplate, v)
		}
		return -f, nil
	default:
		return nil, fmt.Errorf("%w: unknown unary operator %q", ErrTemplate, e.op)
	}
}

// binaryExpr applies a binary operator: arithmetic, comparison, boolean,
// membership, or string concatenation (~).
type binaryExpr struct {
	op          string
	left, right expr
}

func (e *binaryExpr) eval(s *scope) (any, error) {
	// short-circuit boolean operators
	if e.op == "and" {
		l, err := e.left.eval(s)
		if err != nil {
			return nil, err
		}
		if !truthy(l) {
			return false, nil
		}
		r, err := e.right.eval(s)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	if e.op == "or" {
		l, err := e.left.eval(s)
		if err != nil {
			return nil, err
		}
		if truthy(l) {
			return true, nil
		}
		r, err := e.right.eval(s)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := e.left.eval(s)
	if err != nil {
		return nil, err
	}
	r, err := e.right.eval(s)
	if err != nil {
		return nil, err
	}

	switch e.op {
	case "==":
		return looseEqual(l, r), nil
	case "!=":
		return !looseEqual(l, r), nil
	case "<", "<=", ">", ">=":
		return compareNumeric(e.op, l, r)
	case "in":
		return membership(l, r), nil
	case "~":
		return toDisplayString(l) + toDisplayString(r), nil
	case "+", "-", "*", "/", "%":
		return arithmetic(e.op, l, r)
	default:
		return nil, fmt.Errorf("%w: unknown binary operator %q", ErrTemplate, e.op)
	}
}

// isTestExpr applies an `is` type test.
type isTestExpr struct {
	operand expr
	test    string
	negate  bool
}

func (e *isTestExpr) eval(s *scope) (any, error) {
	v, err := e.operand.eval(s)
	if err != nil {
		return nil, err
	}

	result, err := runTypeTest(e.test, v)
	if err != nil {
		return nil, err
	}

	if e.negate {
		return !result, nil
	}
	return result, nil
}

// filterExpr applies a named filter with optional arguments.
type filterExpr struct {
	base expr
	name string
	args []expr
}

func (e *filterExpr) eval(s *scope) (any, error) {
	v, err := e.base.eval(s)
	if err != nil {
		return nil, err
	}

	args := make([]any, len(e.args))
	for i, a := range e.args {
		args[i], err = a.eval(s)
		if err != nil {
			return nil, err
		}
	}

	return applyFilter(e.name, v, args)
}

// listExpr evaluates to a []any literal.
type listExpr struct {
	items []expr
}

func (e *listExpr) eval(s *scope) (any, error) {
	out := make([]any, len(e.items))
	for i, item := range e.items {
		v, err := item.eval(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func runTypeTest(test string, v any) (bool, error) {
	switch test {
	case "defined":
		return v != nil, nil
	case "none":
		return v == nil, nil
	case "string":
		_, ok := v.(string)
		return ok, nil
	case "number":
		switch v.(type) {
		case int64, float64:
			return true, nil
		default:
			return false, nil
		}
	case "mapping":
		_, ok := v.(map[string]any)
		return ok, nil
	case "sequence":
		switch v.(type) {
		case []any, string:
			return true, nil
		default:
			return false, nil
		}
	default:
		return false, fmt.Errorf("%w: unknown type test %q", ErrTemplate, test)
	}
}
