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

package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/template"
)

func render(t *testing.T, src string, ctx map[string]any) string {
	t.Helper()
	tmpl, err := template.Parse(src)
	require.NoError(t, err)
	out, err := tmpl.Render(ctx)
	require.NoError(t, err)
	return out
}

func TestVariableInterpolation(t *testing.T) {
	out := render(t, "Hello, {{ name }}!", map[string]any{"name": "World"})
	assert.Equal(t, "Hello, World!", out)
}

func TestWhitespaceTrim(t *testing.T) {
	out := render(t, "A\n{%- if true -%}\nB\n{%- endif -%}\nC", nil)
	assert.Equal(t, "ABC", out)
}

func TestIfElifElse(t *testing.T) {
	tmpl := "{% if score >= 90 %}A{% elif score >= 80 %}B{% else %}C{% endif %}"

	assert.Equal(t, "A", render(t, tmpl, map[string]any{"score": int64(95)}))
	assert.Equal(t, "B", render(t, tmpl, map[string]any{"score": int64(85)}))
	assert.Equal(t, "C", render(t, tmpl, map[string]any{"score": int64(10)}))
}

func TestForLoopWithLoopObject(t *testing.T) {
	tmpl := "{% for m in messages %}{{ loop.index0 }}:{{ m.role }}={{ m.content }}{% if not loop.last %}, {% endif %}{% endfor %}"
	ctx := map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "hi"},
			map[string]any{"role": "assistant", "content": "hello"},
		},
	}
	assert.Equal(t, "0:user=hi, 1:assistant=hello", render(t, tmpl, ctx))
}

func TestSet(t *testing.T) {
	tmpl := "{% set greeting = \"hi \" ~ name %}{{ greeting }}"
	assert.Equal(t, "hi Bob", render(t, tmpl, map[string]any{"name": "Bob"}))
}

func TestComment(t *testing.T) {
	assert.Equal(t, "ab", render(t, "a{# this is dropped #}b", nil))
}

func TestFilters(t *testing.T) {
	assert.Equal(t, "HELLO", render(t, "{{ ' hello ' | trim | upper }}", nil))
	assert.Equal(t, "3", render(t, "{{ items | length }}", map[string]any{"items": []any{1, 2, 3}}))
	assert.Equal(t, "fallback", render(t, "{{ missing | default('fallback') }}", nil))
	assert.Equal(t, "a, b, c", render(t, "{{ items | join(', ') }}", map[string]any{"items": []any{"a", "b", "c"}}))
}

func TestExpressions(t *testing.T) {
	assert.Equal(t, "true", render(t, "{% if (1 + 2) == 3 %}true{% endif %}", nil))
	assert.Equal(t, "yes", render(t, "{% if 'x' in tools %}yes{% else %}no{% endif %}", map[string]any{"tools": []any{"x", "y"}}))
	assert.Equal(t, "yes", render(t, "{% if name is defined %}yes{% else %}no{% endif %}", map[string]any{"name": "a"}))
	assert.Equal(t, "no", render(t, "{% if name is defined %}yes{% else %}no{% endif %}", nil))
}

func TestIsJinjaDetection(t *testing.T) {
	assert.True(t, template.IsJinja("{{ x }}"))
	assert.False(t, template.IsJinja("{% if x %}unterminated"))
}

func TestUnclosedBlockFails(t *testing.T) {
	_, err := template.Parse("{% if x %}no endif")
	require.Error(t, err)
}

func TestMismatchedEndTagFails(t *testing.T) {
	_, err := template.Parse("{% for x in y %}body{% endif %}")
	require.Error(t, err)
}

func TestProcessorCachesCompiledTemplate(t *testing.T) {
	p, err := template.NewProcessor()
	require.NoError(t, err)

	out1, err := p.Render("{{ a }}-{{ b }}", map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	assert.Equal(t, "1-2", out1)

	out2, err := p.Render("{{ a }}-{{ b }}", map[string]any{"a": "3", "b": "4"})
	require.NoError(t, err)
	assert.Equal(t, "3-4", out2)
}
