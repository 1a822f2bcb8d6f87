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

// Qwen3Backend runs a Qwen3-family decoder. It differs from Llama only in
// that every attention head's query and key vectors are RMS-normalized
// before RoPE is applied.
type Qwen3Backend struct {
	decoder *Decoder
	parser  *toolcall.Qwen3Parser
}

// NewQwen3Backend loads Qwen3 weights from loader according to cfg.
func NewQwen3Backend(loader *WeightLoader, cfg *ModelConfig) (*Qwen3Backend, error) {
	decoder, err := loadDecoder(loader, cfg, decoderOptions{qkNorm: true})
	if err != nil {
		return nil, fmt.Errorf("load qwen3 decoder: %w", err)
	}

	return &Qwen3Backend{decoder: decoder, parser: toolcall.NewQwen3Parser()}, nil
}

// Forward implements Backend.
func (b *Qwen3Backend) Forward(inputTokens []int32, position int) ([]float32, error) {
	return toFloat32(b.decoder.Forward(inputTokens, position)), nil
}

// ClearKVCache implements Backend.
func (b *Qwen3Backend) ClearKVCache() {
	b.decoder.ClearKVCache()
}

// ToolCallParser implements Backend.
func (b *Qwen3Backend) ToolCallParser() toolcall.Parser {
	return b.parser
}
