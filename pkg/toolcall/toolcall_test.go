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

package toolcall_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/toolcall"
)

func TestLlamaParser_CleanJSON(t *testing.T) {
	p := toolcall.NewLlamaParser()

	calls, ok := p.Parse(`{"name": "get_weather", "parameters": {"city": "Paris"}}`)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city": "Paris"}`, string(calls[0].Arguments))
}

func TestLlamaParser_WithPrefixText(t *testing.T) {
	p := toolcall.NewLlamaParser()

	calls, ok := p.Parse("Sure, let me check that.\n" +
		`{"name": "get_weather", "parameters": {"city": "Paris"}}`)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
}

func TestLlamaParser_WithTrailingText(t *testing.T) {
	p := toolcall.NewLlamaParser()

	calls, ok := p.Parse(`{"name": "get_weather", "parameters": {"city": "Paris"}}` +
		"\nLet me know if you need anything else.")
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
}

func TestLlamaParser_PlainTextReturnsFalse(t *testing.T) {
	p := toolcall.NewLlamaParser()

	_, ok := p.Parse("The weather in Paris is sunny today.")
	assert.False(t, ok)
}

func TestLlamaParser_MissingParametersReturnsFalse(t *testing.T) {
	p := toolcall.NewLlamaParser()

	_, ok := p.Parse(`{"name": "get_weather"}`)
	assert.False(t, ok)
}

func TestLlamaParser_SkipsUnrelatedJSONBeforeCall(t *testing.T) {
	p := toolcall.NewLlamaParser()

	calls, ok := p.Parse(`{"status":"ok"} {"name": "get_weather", "parameters": {"city": "Paris"}}`)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
}

func TestQwen3Parser_SingleCall(t *testing.T) {
	p := toolcall.NewQwen3Parser()

	calls, ok := p.Parse("<tool_call>" +
		`{"name": "get_weather", "arguments": {"city": "Paris"}}` +
		"</tool_call>")
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_0", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
}

func TestQwen3Parser_MultipleCalls(t *testing.T) {
	p := toolcall.NewQwen3Parser()

	calls, ok := p.Parse(
		"<tool_call>" + `{"name": "get_weather", "arguments": {"city": "Paris"}}` + "</tool_call>" +
			"\n" +
			"<tool_call>" + `{"name": "get_time", "arguments": {"tz": "CET"}}` + "</tool_call>",
	)
	require.True(t, ok)
	require.Len(t, calls, 2)
	assert.Equal(t, "call_0", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "call_1", calls[1].ID)
	assert.Equal(t, "get_time", calls[1].Name)
}

func TestQwen3Parser_WithSurroundingText(t *testing.T) {
	p := toolcall.NewQwen3Parser()

	calls, ok := p.Parse("Let me look that up.\n<tool_call>" +
		`{"name": "get_weather", "arguments": {"city": "Paris"}}` +
		"</tool_call>\nDone.")
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)
}

func TestQwen3Parser_PlainTextReturnsFalse(t *testing.T) {
	p := toolcall.NewQwen3Parser()

	_, ok := p.Parse("The weather in Paris is sunny today.")
	assert.False(t, ok)
}

func TestQwen3Parser_UnclosedTagReturnsFalse(t *testing.T) {
	p := toolcall.NewQwen3Parser()

	_, ok := p.Parse(`<tool_call>{"name": "get_weather", "arguments": {}}`)
	assert.False(t, ok)
}

func TestGemmaParser_MirrorsLlama(t *testing.T) {
	p := toolcall.NewGemmaParser()

	calls, ok := p.Parse(`{"name": "get_weather", "parameters": {"city": "Paris"}}`)
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].Name)

	_, ok = p.Parse("no tool call here")
	assert.False(t, ok)
}
