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
	"strings"
)

// toolCallAnchor is the substring a tool-call object's opening brace must be
// found at: scanning for the first '{' of any kind picks up unrelated JSON
// that may precede the actual call in the response text.
const toolCallAnchor = `{"name"`

// findFirstJSONObject scans input for the first complete, balanced JSON
// object whose opening brace begins the `{"name"` anchor, honoring string
// literals and escape sequences so braces inside quoted strings don't throw
// off the depth counter. It returns the decoded value or ok=false if no
// balanced object is found.
func findFirstJSONObject(input string) (map[string]json.RawMessage, bool) {
	start := strings.Index(input, toolCallAnchor)
	if start == -1 {
		return nil, false
	}

	bytes := []byte(input)
	depth := 0
	inString := false
	escapeNext := false

	for i := start; i < len(bytes); i++ {
		b := bytes[i]

		if escapeNext {
			escapeNext = false
			continue
		}

		switch {
		case b == '\\' && inString:
			escapeNext = true
		case b == '"':
			inString = !inString
		case b == '{' && !inString:
			depth++
		case b == '}' && !inString:
			depth--
			if depth == 0 {
				candidate := input[start : i+1]
				var obj map[string]json.RawMessage
				if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}

	return nil, false
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
