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

package backend

import (
	"encoding/json"

	"github.com/llm-d/llm-d-local-runtime/pkg/toolcall"
)

// mockVocabSize is the byte-level vocabulary ByteCodec and MockBackend
// share: one token per possible byte value.
const mockVocabSize = 256

// mockEOSID is the token id Mock samples once it has echoed the last
// message's content, one past the byte-value range so it can never collide
// with a real echoed byte.
const mockEOSID int32 = mockVocabSize

// mockLogitsSize covers every byte value plus the EOS slot.
const mockLogitsSize = mockVocabSize + 1

// mockDominantLogit is large enough that, after temperature scaling, the
// chosen byte or EOS id keeps essentially all sampling probability
// regardless of the caller's temperature/top-k/top-p settings: softmax of a
// 1.0-vs-0.0 spread still leaves the other 255 candidates a non-negligible
// share, so the spike has to dwarf them, not just lead them.
const mockDominantLogit float32 = 1e6

// mockEchoSteps caps how many bytes of the last message's content Mock
// echoes back before generation should stop.
const mockEchoSteps = 5

// Codec lets a Backend replace chat templating and real tokenization with
// its own byte-level encode/decode, so a runtime can drive it directly from
// a message list without needing a tokenizer.json or chat_template.jinja on
// disk. Only MockBackend implements it today.
type Codec interface {
	Encode(s string) []int32
	Decode(tokens []int32) string
}

// ByteCodec maps each byte of a UTF-8 string to one token id and back. It
// never fails to round-trip, which is what makes it useful for a backend
// that has no real vocabulary.
type ByteCodec struct{}

// Encode implements Codec.
func (ByteCodec) Encode(s string) []int32 {
	b := []byte(s)
	out := make([]int32, len(b))
	for i, c := range b {
		out[i] = int32(c)
	}
	return out
}

// Decode implements Codec. It drops mockEOSID the same way a real
// tokenizer's Decode drops special tokens with skip_special_tokens=true.
func (ByteCodec) Decode(tokens []int32) string {
	b := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		if t == mockEOSID {
			continue
		}
		b = append(b, byte(t))
	}
	return string(b)
}

// mockMessage mirrors just the fields MockBackend needs out of a chat
// message, decoded independently of pkg/runtime's Message type to avoid an
// import cycle (runtime depends on backend, not the reverse).
type mockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MockBackend never loads a model. It bypasses chat templating and real
// tokenization via Codec: the prompt it receives is exactly the
// byte-encoding of json.Marshal(messages), so once enough bytes have
// arrived to close that JSON array, MockBackend knows the full message list
// and echoes the last message's content back one byte per decode step, up
// to mockEchoSteps bytes.
type MockBackend struct {
	seen        []byte
	promptKnown bool
	echoContent string
	echoIdx     int
}

// NewMockBackend returns a MockBackend ready to serve its first generation.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Codec exposes the byte-level codec a runtime should encode/decode with
// instead of its usual tokenizer when talking to this backend.
func (b *MockBackend) Codec() Codec {
	return ByteCodec{}
}

// Forward implements Backend. position == 0 marks the start of a new
// generation and resets the accumulated prompt buffer. inputTokens may
// carry the whole prompt in one call (prefill) or a single token per decode
// step; only the logits for the position after the last input token are
// returned, matching the rest of the Backend family.
func (b *MockBackend) Forward(inputTokens []int32, position int) ([]float32, error) {
	if position == 0 {
		b.seen = nil
		b.promptKnown = false
		b.echoContent = ""
		b.echoIdx = 0
	}

	for _, token := range inputTokens {
		b.seen = append(b.seen, byte(token))

		if !b.promptKnown {
			var messages []mockMessage
			if err := json.Unmarshal(b.seen, &messages); err == nil && len(messages) > 0 {
				b.promptKnown = true
				b.echoContent = messages[len(messages)-1].Content
			}
		}
	}

	logits := make([]float32, mockLogitsSize)
	switch {
	case !b.promptKnown:
		// Prompt still accumulating; nothing to echo yet.
	case b.echoIdx < len(b.echoContent) && b.echoIdx < mockEchoSteps:
		logits[b.echoContent[b.echoIdx]] = mockDominantLogit
		b.echoIdx++
	default:
		logits[mockEOSID] = mockDominantLogit
	}

	return logits, nil
}

// EOSID reports the sentinel token id LocalRuntime should treat as an EOS
// id for this backend, so the generation loop terminates right after the
// echoed content instead of running to max_tokens.
func (b *MockBackend) EOSID() int32 {
	return mockEOSID
}

// ClearKVCache implements Backend. MockBackend keeps no cross-call state
// beyond what Forward resets on position == 0, so this is a no-op.
func (b *MockBackend) ClearKVCache() {}

// ToolCallParser implements Backend. Mock has no tool-call convention.
func (b *MockBackend) ToolCallParser() toolcall.Parser {
	return nil
}
