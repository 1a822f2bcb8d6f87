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

// Package backend implements the decoder-only transformer families a local
// runtime can serve: a pure-Go reimplementation of the Llama, Qwen3, and
// Gemma3 forward passes over safetensors checkpoints, plus a Mock backend
// used for tests and demos that never touches a real model file.
package backend

import (
	"github.com/llm-d/llm-d-local-runtime/pkg/toolcall"
)

// Backend advances a model's hidden state by one token and produces the
// logits over its vocabulary for that step. Implementations own their KV
// cache internally; ClearKVCache resets it for a fresh generation.
type Backend interface {
	// Forward consumes inputTokens starting at the given sequence
	// position (0 for prefill, promptLen+i for decode step i) and
	// returns the logits for the position immediately following the
	// last input token.
	Forward(inputTokens []int32, position int) ([]float32, error)

	// ClearKVCache discards accumulated attention state.
	ClearKVCache()

	// ToolCallParser returns this family's tool-call convention, or nil
	// if the backend doesn't support tool calls.
	ToolCallParser() toolcall.Parser
}

func toFloat32(x []float64) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(v)
	}
	return out
}
