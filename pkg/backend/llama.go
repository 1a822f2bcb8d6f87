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

// LlamaBackend runs a standard Llama-family decoder: RMSNorm, grouped-query
// attention with rotary position embeddings, and a SwiGLU MLP, with no
// per-head normalization.
type LlamaBackend struct {
	decoder *Decoder
	parser  *toolcall.LlamaParser
}

// NewLlamaBackend loads Llama weights from loader according to cfg.
func NewLlamaBackend(loader *WeightLoader, cfg *ModelConfig) (*LlamaBackend, error) {
	decoder, err := loadDecoder(loader, cfg, decoderOptions{})
	if err != nil {
		return nil, fmt.Errorf("load llama decoder: %w", err)
	}

	return &LlamaBackend{decoder: decoder, parser: toolcall.NewLlamaParser()}, nil
}

// Forward implements Backend.
func (b *LlamaBackend) Forward(inputTokens []int32, position int) ([]float32, error) {
	return toFloat32(b.decoder.Forward(inputTokens, position)), nil
}

// ClearKVCache implements Backend.
func (b *LlamaBackend) ClearKVCache() {
	b.decoder.ClearKVCache()
}

// ToolCallParser implements Backend.
func (b *LlamaBackend) ToolCallParser() toolcall.Parser {
	return b.parser
}
