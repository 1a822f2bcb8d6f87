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

// Template is a parsed, renderable chat template.
type Template struct {
	root []node
}

// Parse parses src as a Jinja-subset template. It returns ErrTemplate (or a
// wrapping of it) on any unclosed block or unmatched end tag.
func Parse(src string) (*Template, error) {
	parts, err := lexTemplate(src)
	if err != nil {
		return nil, err
	}

	bp := &blockParser{parts: parts}
	nodes, err := bp.parseNodes()
	if err != nil {
		return nil, err
	}
	if bp.pos != len(bp.parts) {
		return nil, fmt.Errorf("%w: unexpected tag %q", ErrTemplate, bp.parts[bp.pos].text)
	}

	return &Template{root: nodes}, nil
}

// IsJinja reports whether src parses successfully as a Jinja-subset
// template; per the component design, detection is parse-success-based.
func IsJinja(src string) bool {
	_, err := Parse(src)
	return err == nil
}

type blockParser struct {
	parts []part
	pos   int
}

func (bp *blockParser) cur() (part, bool) {
	if bp.pos >= len(bp.parts) {
		return part{}, false
	}
	return bp.parts[bp.pos], true
}

// parseNodes parses nodes until EOF or an enclosing tag (elif/else/endif/endfor).
func (bp *blockParser) parseNodes() ([]node, error) {
	var nodes []node

	for {
		p, ok := bp.cur()
		if !ok {
			return nodes, nil
		}

		switch p.kind {
		case partText:
			nodes = append(nodes, &textNode{text: p.text})
			bp.pos++

		case partComment:
			bp.pos++

		case partVar:
			e, err := parseExprString(p.text)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &varNode{expr: e})
			bp.pos++

		case partTag:
			name, rest := splitTagName(p.text)
			switch name {
			case "if":
				n, err := bp.parseIf(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)

			case "for":
				n, err := bp.parseFor(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)

			case "set":
				n, err := bp.parseSet(rest)
				if err != nil {
					return nil, err
				}
				nodes = append(nodes, n)
				bp.pos++

			case "elif", "else", "endif", "endfor":
				// enclosing construct will consume this tag.
				return nodes, nil

			default:
				return nil, fmt.Errorf("%w: unknown tag %q", ErrTemplate, name)
			}

		default:
			bp.pos++
		}
	}
}

// parseIf parses {% if cond %} body (elif cond %} body)* (else %} body)? {% endif %}.
// bp.pos is positioned at the `if` tag on entry; it consumes through `endif`.
func (bp *blockParser) parseIf(firstCond string) (*ifNode, error) {
	bp.pos++ // consume "if"

	var branches []ifBranch

	cond, err := parseExprString(firstCond)
	if err != nil {
		return nil, err
	}
	body, err := bp.parseNodes()
	if err != nil {
		return nil, err
	}
	branches = append(branches, ifBranch{cond: cond, body: body})

	for {
		p, ok := bp.cur()
		if !ok {
			return nil, fmt.Errorf("%w: unclosed \"if\" (missing endif)", ErrTemplate)
		}
		name, rest := splitTagName(p.text)

		switch name {
		case "elif":
			bp.pos++
			cond, err := parseExprString(rest)
			if err != nil {
				return nil, err
			}
			body, err := bp.parseNodes()
			if err != nil {
				return nil, err
			}
			branches = append(branches, ifBranch{cond: cond, body: body})

		case "else":
			bp.pos++
			body, err := bp.parseNodes()
			if err != nil {
				return nil, err
			}
			branches = append(branches, ifBranch{cond: nil, body: body})

		case "endif":
			bp.pos++
			return &ifNode{branches: branches}, nil

		default:
			return nil, fmt.Errorf("%w: expected endif, got %q", ErrTemplate, name)
		}
	}
}

// parseFor parses {% for v in expr %} body {% endfor %}. bp.pos is
// positioned at the `for` tag on entry; it consumes through `endfor`.
func (bp *blockParser) parseFor(header string) (*forNode, error) {
	bp.pos++ // consume "for"

	varName, iterSrc, ok := strings.Cut(header, " in ")
	if !ok {
		return nil, fmt.Errorf("%w: malformed \"for\" header %q", ErrTemplate, header)
	}
	varName = strings.TrimSpace(varName)

	iterExpr, err := parseExprString(strings.TrimSpace(iterSrc))
	if err != nil {
		return nil, err
	}

	body, err := bp.parseNodes()
	if err != nil {
		return nil, err
	}

	p, ok := bp.cur()
	if !ok {
		return nil, fmt.Errorf("%w: unclosed \"for\" (missing endfor)", ErrTemplate)
	}
	name, _ := splitTagName(p.text)
	if name != "endfor" {
		return nil, fmt.Errorf("%w: expected endfor, got %q", ErrTemplate, name)
	}
	bp.pos++

	return &forNode{varName: varName, iter: iterExpr, body: body}, nil
}

// parseSet parses {% set v = expr %}.
func (bp *blockParser) parseSet(header string) (*setNode, error) {
	varName, valueSrc, ok := strings.Cut(header, "=")
	if !ok {
		return nil, fmt.Errorf("%w: malformed \"set\" header %q", ErrTemplate, header)
	}

	value, err := parseExprString(strings.TrimSpace(valueSrc))
	if err != nil {
		return nil, err
	}

	return &setNode{varName: strings.TrimSpace(varName), value: value}, nil
}

// splitTagName splits a tag body like "if x == 1" into ("if", "x == 1").
func splitTagName(body string) (name, rest string) {
	body = strings.TrimSpace(body)
	name, rest, found := strings.Cut(body, " ")
	if !found {
		return body, ""
	}
	return name, strings.TrimSpace(rest)
}
