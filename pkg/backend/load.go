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
	"math"
)

// decoderOptions selects the per-family structural variations a standard
// Llama-shaped decoder can take: Qwen3 and Gemma3 both normalize each
// attention head before RoPE; Gemma3 additionally scales its embeddings and
// wraps the MLP output in an extra norm.
type decoderOptions struct {
	qkNorm     bool
	ffNorm     bool
	embedScale bool
}

// loadDecoder reads every tensor a standard grouped-query-attention decoder
// needs out of loader, following the naming convention shared by Llama,
// Qwen3, and Gemma3 checkpoints (`model.layers.N....`, `model.norm.weight`,
// `lm_head.weight` or tied embeddings).
func loadDecoder(loader *WeightLoader, cfg *ModelConfig, opts decoderOptions) (*Decoder, error) {
	d := NewDecoder(cfg)

	embedW, embedShape, err := loader.Get("model.embed_tokens.weight")
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	d.Embed = NewEmbedding(embedW, embedShape)

	if opts.embedScale {
		d.EmbedScale = math.Sqrt(float64(cfg.HiddenSize))
	}

	for i, layer := range d.Layers {
		prefix := fmt.Sprintf("model.layers.%d.", i)

		layer.InputNorm, _, err = loader.Get(prefix + "input_layernorm.weight")
		if err != nil {
			return nil, fmt.Errorf("layer %d input norm: %w", i, err)
		}
		layer.PostAttnNorm, _, err = loader.Get(prefix + "post_attention_layernorm.weight")
		if err != nil {
			return nil, fmt.Errorf("layer %d post-attention norm: %w", i, err)
		}

		if err := loadLinear(loader, prefix+"self_attn.q_proj.weight", &layer.QProj); err != nil {
			return nil, err
		}
		if err := loadLinear(loader, prefix+"self_attn.k_proj.weight", &layer.KProj); err != nil {
			return nil, err
		}
		if err := loadLinear(loader, prefix+"self_attn.v_proj.weight", &layer.VProj); err != nil {
			return nil, err
		}
		if err := loadLinear(loader, prefix+"self_attn.o_proj.weight", &layer.OProj); err != nil {
			return nil, err
		}

		if opts.qkNorm {
			layer.QNorm, _, err = loader.Get(prefix + "self_attn.q_norm.weight")
			if err != nil {
				return nil, fmt.Errorf("layer %d q_norm: %w", i, err)
			}
			layer.KNorm, _, err = loader.Get(prefix + "self_attn.k_norm.weight")
			if err != nil {
				return nil, fmt.Errorf("layer %d k_norm: %w", i, err)
			}
		}

		if err := loadLinear(loader, prefix+"mlp.gate_proj.weight", &layer.GateProj); err != nil {
			return nil, err
		}
		if err := loadLinear(loader, prefix+"mlp.up_proj.weight", &layer.UpProj); err != nil {
			return nil, err
		}
		if err := loadLinear(loader, prefix+"mlp.down_proj.weight", &layer.DownProj); err != nil {
			return nil, err
		}

		if opts.ffNorm {
			layer.PostFFNorm, _, err = loader.Get(prefix + "post_feedforward_layernorm.weight")
			if err != nil {
				return nil, fmt.Errorf("layer %d post-feedforward norm: %w", i, err)
			}
		}
	}

	d.FinalNorm, _, err = loader.Get("model.norm.weight")
	if err != nil {
		return nil, fmt.Errorf("load final norm: %w", err)
	}

	lmHeadW, lmHeadShape, err := loader.Get("lm_head.weight")
	if err != nil {
		// Many checkpoints tie the output projection to the input
		// embeddings and omit a separate lm_head tensor.
		lmHeadW, lmHeadShape = embedW, embedShape
	}
	d.LMHead = NewLinear(lmHeadW, lmHeadShape)

	return d, nil
}

func loadLinear(loader *WeightLoader, name string, dst **Linear) error {
	w, shape, err := loader.Get(name)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	*dst = NewLinear(w, shape)
	return nil
}
