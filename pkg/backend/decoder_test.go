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

package backend_test

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/backend"
	"github.com/llm-d/llm-d-local-runtime/pkg/safetensors"
)

// buildTinyLlamaCheckpoint writes a single-shard safetensors file plus a
// config.json for a one-layer toy Llama-shaped model, small enough to
// exercise a full forward pass without approximating any real weights.
func buildTinyLlamaCheckpoint(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	const (
		hidden       = 4
		heads        = 2
		headDim      = 2
		intermediate = 8
		vocab        = 5
	)

	rng := rand.New(rand.NewSource(1))
	tensor := func(n int) []float32 {
		vals := make([]float32, n)
		for i := range vals {
			vals[i] = float32(rng.NormFloat64() * 0.02)
		}
		return vals
	}

	type spec struct {
		name  string
		shape []int
		data  []float32
	}
	specs := []spec{
		{"model.embed_tokens.weight", []int{vocab, hidden}, tensor(vocab * hidden)},
		{"model.layers.0.input_layernorm.weight", []int{hidden}, onesF32(hidden)},
		{"model.layers.0.self_attn.q_proj.weight", []int{heads * headDim, hidden}, tensor(heads * headDim * hidden)},
		{"model.layers.0.self_attn.k_proj.weight", []int{heads * headDim, hidden}, tensor(heads * headDim * hidden)},
		{"model.layers.0.self_attn.v_proj.weight", []int{heads * headDim, hidden}, tensor(heads * headDim * hidden)},
		{"model.layers.0.self_attn.o_proj.weight", []int{hidden, heads * headDim}, tensor(hidden * heads * headDim)},
		{"model.layers.0.post_attention_layernorm.weight", []int{hidden}, onesF32(hidden)},
		{"model.layers.0.mlp.gate_proj.weight", []int{intermediate, hidden}, tensor(intermediate * hidden)},
		{"model.layers.0.mlp.up_proj.weight", []int{intermediate, hidden}, tensor(intermediate * hidden)},
		{"model.layers.0.mlp.down_proj.weight", []int{hidden, intermediate}, tensor(hidden * intermediate)},
		{"model.norm.weight", []int{hidden}, onesF32(hidden)},
		{"lm_head.weight", []int{vocab, hidden}, tensor(vocab * hidden)},
	}

	header := make(map[string]safetensors.TensorInfo, len(specs))
	var buf []byte
	for _, s := range specs {
		start := int64(len(buf))
		for _, v := range s.data {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			buf = append(buf, b[:]...)
		}
		header[s.name] = safetensors.TensorInfo{
			DType:       safetensors.DTypeF32,
			Shape:       s.shape,
			DataOffsets: [2]int64{start, int64(len(buf))},
		}
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "model.safetensors"),
		append(append(lenBuf[:], headerJSON...), buf...),
		0o600,
	))

	cfg := map[string]any{
		"model_type":              "llama",
		"hidden_size":             hidden,
		"intermediate_size":       intermediate,
		"num_hidden_layers":       1,
		"num_attention_heads":     heads,
		"num_key_value_heads":     heads,
		"vocab_size":              vocab,
		"head_dim":                headDim,
		"max_position_embeddings": 32,
	}
	cfgJSON, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), cfgJSON, 0o600))

	return dir
}

func onesF32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func TestLlamaBackend_ForwardProducesVocabLogits(t *testing.T) {
	dir := buildTinyLlamaCheckpoint(t)

	b, err := backend.New(backend.Source{Name: "Llama3-tiny", Dir: dir})
	require.NoError(t, err)

	logits, err := b.Forward([]int32{0, 2, 1}, 0)
	require.NoError(t, err)
	assert.Len(t, logits, 5)

	logits, err = b.Forward([]int32{3}, 3)
	require.NoError(t, err)
	assert.Len(t, logits, 5)

	b.ClearKVCache()
	assert.NotNil(t, b.ToolCallParser())
}
