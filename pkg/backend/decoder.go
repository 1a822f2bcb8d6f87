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

import "math"

// Layer holds one decoder block's weights: GQA self-attention (with rotary
// position embeddings) followed by a SwiGLU MLP, each wrapped in RMSNorm.
// qNorm/kNorm are non-nil only for families that normalize each attention
// head before applying RoPE (Qwen3, Gemma3).
type Layer struct {
	InputNorm    []float64
	QProj        *Linear
	KProj        *Linear
	VProj        *Linear
	OProj        *Linear
	QNorm        []float64
	KNorm        []float64
	PostAttnNorm []float64
	GateProj     *Linear
	UpProj       *Linear
	DownProj     *Linear
	PostFFNorm   []float64 // non-nil only for Gemma3's extra post-MLP norm
	cache        *layerKVCache
}

// Decoder is a family-agnostic transformer decoder: an embedding table, N
// Layers, a final norm, and an (possibly tied) LM head. Family wrappers
// (Llama, Qwen3, Gemma3) differ only in which optional features their
// Layers populate and in embedding scaling.
type Decoder struct {
	Embed      *Embedding
	Layers     []*Layer
	FinalNorm  []float64
	LMHead     *Linear
	NumHeads   int
	NumKVHeads int
	HeadDim    int
	RMSNormEps float64
	RopeTheta  float64
	EmbedScale float64 // 1.0 unless the family scales embeddings (Gemma)
}

// NewDecoder builds an empty Decoder shell; callers populate Embed, Layers,
// FinalNorm, and LMHead from a WeightLoader before calling Forward.
func NewDecoder(cfg *ModelConfig) *Decoder {
	layers := make([]*Layer, cfg.NumHiddenLayers)
	for i := range layers {
		layers[i] = &Layer{cache: newLayerKVCache()}
	}

	return &Decoder{
		Layers:     layers,
		NumHeads:   cfg.NumAttentionHeads,
		NumKVHeads: cfg.NumKeyValueHeads,
		HeadDim:    cfg.HeadDim,
		RMSNormEps: cfg.RMSNormEps,
		RopeTheta:  cfg.RopeTheta,
		EmbedScale: 1.0,
	}
}

// ClearKVCache discards accumulated attention state, starting the next
// Forward call from position 0 again.
func (d *Decoder) ClearKVCache() {
	for _, l := range d.Layers {
		l.cache.keys = nil
		l.cache.values = nil
	}
}

// Forward runs tokens through the decoder starting at startPos (0 for
// prefill, promptLen+i for decode step i), returning logits over the
// vocabulary for only the final position — the next-token distribution,
// exactly as a batched [batch, seq, vocab] forward pass would after
// selecting its last position.
func (d *Decoder) Forward(tokens []int32, startPos int) []float64 {
	var logits []float64

	for i, token := range tokens {
		x := d.Embed.Lookup(token)
		if d.EmbedScale != 1.0 {
			for j := range x {
				x[j] *= d.EmbedScale
			}
		}

		position := startPos + i
		for _, layer := range d.Layers {
			x = d.runLayer(layer, x, position)
		}

		x = rmsNorm(x, d.FinalNorm, d.RMSNormEps)
		logits = d.LMHead.Forward(x)
	}

	return logits
}

func (d *Decoder) runLayer(layer *Layer, x []float64, position int) []float64 {
	residual := x
	h := rmsNorm(x, layer.InputNorm, d.RMSNormEps)

	attnOut := d.selfAttention(layer, h, position)
	x = addVec(residual, layer.OProj.Forward(attnOut))

	residual = x
	h = rmsNorm(x, layer.PostAttnNorm, d.RMSNormEps)

	gate := layer.GateProj.Forward(h)
	up := layer.UpProj.Forward(h)
	mlpHidden := make([]float64, len(gate))
	for i := range mlpHidden {
		mlpHidden[i] = silu(gate[i]) * up[i]
	}
	mlpOut := layer.DownProj.Forward(mlpHidden)

	if layer.PostFFNorm != nil {
		mlpOut = rmsNorm(mlpOut, layer.PostFFNorm, d.RMSNormEps)
	}

	return addVec(residual, mlpOut)
}

// selfAttention computes grouped-query attention for one decoder layer at
// one sequence position, updating the layer's KV cache with this position's
// projected keys/values before attending over the full prefix.
func (d *Decoder) selfAttention(layer *Layer, h []float64, position int) []float64 {
	q := layer.QProj.Forward(h)
	k := layer.KProj.Forward(h)
	v := layer.VProj.Forward(h)

	qHeads := splitHeads(q, d.NumHeads, d.HeadDim)
	kHeads := splitHeads(k, d.NumKVHeads, d.HeadDim)
	vHeads := splitHeads(v, d.NumKVHeads, d.HeadDim)

	if layer.QNorm != nil {
		for _, qh := range qHeads {
			applyHeadNorm(qh, layer.QNorm, d.RMSNormEps)
		}
	}
	if layer.KNorm != nil {
		for _, kh := range kHeads {
			applyHeadNorm(kh, layer.KNorm, d.RMSNormEps)
		}
	}

	for _, qh := range qHeads {
		applyRoPE(qh, position, d.RopeTheta)
	}
	for _, kh := range kHeads {
		applyRoPE(kh, position, d.RopeTheta)
	}

	layer.cache.append(kHeads, vHeads)

	groupSize := d.NumHeads / d.NumKVHeads
	scale := 1.0 / math.Sqrt(float64(d.HeadDim))

	out := make([]float64, d.NumHeads*d.HeadDim)
	for hIdx, qh := range qHeads {
		kvIdx := hIdx / groupSize

		scores := make([]float64, layer.cache.len())
		for pos := 0; pos < layer.cache.len(); pos++ {
			scores[pos] = dot(qh, layer.cache.keys[pos][kvIdx]) * scale
		}
		softmax(scores)

		acc := make([]float64, d.HeadDim)
		for pos, weight := range scores {
			vVec := layer.cache.values[pos][kvIdx]
			for i := range acc {
				acc[i] += weight * vVec[i]
			}
		}

		copy(out[hIdx*d.HeadDim:(hIdx+1)*d.HeadDim], acc)
	}

	return out
}

func splitHeads(x []float64, numHeads, headDim int) [][]float64 {
	heads := make([][]float64, numHeads)
	for i := 0; i < numHeads; i++ {
		heads[i] = x[i*headDim : (i+1)*headDim]
	}
	return heads
}

// applyHeadNorm RMS-normalizes a single attention head in place, the
// per-head qk-norm used by Qwen3 and Gemma3 before RoPE is applied.
func applyHeadNorm(head []float64, weight []float64, eps float64) {
	normed := rmsNorm(head, weight, eps)
	copy(head, normed)
}

func addVec(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + b[i]
	}
	return out
}
