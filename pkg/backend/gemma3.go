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
	"fmt"

	"github.com/llm-d/llm-d-local-runtime/pkg/toolcall"
)

// Gemma3Backend runs a Gemma3-family decoder: per-head qk-norm like Qwen3,
// an extra norm after the MLP, and embeddings scaled by sqrt(hidden_size)
// before the first decoder block.
type Gemma3Backend struct {
	decoder *Decoder
	parser  *toolcall.GemmaParser
}

// NewGemma3Backend loads Gemma3 weights from loader according to cfg.
func NewGemma3Backend(loader *WeightLoader, cfg *ModelConfig) (*Gemma3Backend, error) {
	decoder, err := loadDecoder(loader, cfg, decoderOptions{
		qkNorm:     true,
		ffNorm:     true,
		embedScale: true,
	})
	if err != nil {
		return nil, fmt.Errorf("load gemma3 decoder: %w", err)
	}

	return &Gemma3Backend{decoder: decoder, parser: toolcall.NewGemmaParser()}, nil
}

// Forward implements Backend.
func (b *Gemma3Backend) Forward(inputTokens []int32, position int) ([]float32, error) {
	return toFloat32(b.decoder.Forward(inputTokens, position)), nil
}

// ClearKVCache implements Backend.
func (b *Gemma3Backend) ClearKVCache() {
	b.decoder.ClearKVCache()
}

// ToolCallParser implements Backend.
func (b *Gemma3Backend) ToolCallParser() toolcall.Parser {
	return b.parser
}
