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

package toolcall

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	qwen3ToolCallOpen  = "<tool_call>"
	qwen3ToolCallClose = "</tool_call>"
)

// Qwen3Parser recognizes the Qwen3 chat template's tool-call convention: one
// or more `<tool_call>{"name": ..., "arguments": ...}</tool_call>` segments,
// each a complete call.
type Qwen3Parser struct{}

// NewQwen3Parser returns a Parser for the Qwen3 tool-call convention.
func NewQwen3Parser() *Qwen3Parser {
	return &Qwen3Parser{}
}

// Parse implements Parser.
func (p *Qwen3Parser) Parse(output string) ([]ToolCall, bool) {
	segments := strings.Split(output, qwen3ToolCallOpen)

	var calls []ToolCall
	for _, segment := range segments[1:] {
		jsonStr, _, ok := strings.Cut(segment, qwen3ToolCallClose)
		if !ok {
			continue
		}
		jsonStr = strings.TrimSpace(jsonStr)

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
			continue
		}

		nameRaw, ok := obj["name"]
		if !ok {
			continue
		}
		name, ok := decodeString(nameRaw)
		if !ok {
			continue
		}

		arguments, ok := obj["arguments"]
		if !ok {
			continue
		}

		calls = append(calls, ToolCall{
			ID:        "call_" + strconv.Itoa(len(calls)),
			Name:      name,
			Arguments: arguments,
		})
	}

	if len(calls) == 0 {
		return nil, false
	}

	return calls, true
}
