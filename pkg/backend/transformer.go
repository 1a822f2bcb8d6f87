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
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linear is a dense `y = W x` projection, the shape every attention and MLP
// weight in a transformer decoder takes. Computation runs in float64 via
// gonum regardless of the BF16/F16 storage format the checkpoint ships in;
// nothing here is performance critical enough to justify staying in
// float32.
type Linear struct {
	w   *mat.Dense // out x in
	out int
	in  int
}

// NewLinear builds a Linear from a row-major float32 weight tensor shaped
// [out, in], the layout safetensors stores nn.Linear weights in.
func NewLinear(weights []float32, shape []int) *Linear {
	out, in := shape[0], shape[1]
	data := make([]float64, len(weights))
	for i, v := range weights {
		data[i] = float64(v)
	}

	return &Linear{w: mat.NewDense(out, in, data), out: out, in: in}
}

// Forward computes W x for a single vector x of length l.in.
func (l *Linear) Forward(x []float64) []float64 {
	xv := mat.NewVecDense(l.in, x)
	yv := mat.NewVecDense(l.out, nil)
	yv.MulVec(l.w, xv)

	out := make([]float64, l.out)
	for i := range out {
		out[i] = yv.AtVec(i)
	}

	return out
}

// Embedding is a vocab x hidden lookup table.
type Embedding struct {
	rows   [][]float64
	hidden int
}

// NewEmbedding builds an Embedding from a row-major float32 tensor shaped
// [vocab, hidden].
func NewEmbedding(weights []float32, shape []int) *Embedding {
	vocab, hidden := shape[0], shape[1]
	rows := make([][]float64, vocab)
	for i := 0; i < vocab; i++ {
		row := make([]float64, hidden)
		for j := 0; j < hidden; j++ {
			row[j] = float64(weights[i*hidden+j])
		}
		rows[i] = row
	}

	return &Embedding{rows: rows, hidden: hidden}
}

// Lookup returns the embedding for a single token id.
func (e *Embedding) Lookup(token int32) []float64 {
	if int(token) < 0 || int(token) >= len(e.rows) {
		return make([]float64, e.hidden)
	}

	out := make([]float64, e.hidden)
	copy(out, e.rows[token])

	return out
}

// rmsNorm returns a new slice holding the root-mean-square layer
// normalization of x, scaled by weight; x itself is left unchanged. It matches the RMSNorm used across Llama/Qwen/Gemma
// decoder blocks.
func rmsNorm(x []float64, weight []float64, eps float64) []float64 {
	var sumSq float64
	for _, v := range x {
		sumSq += v * v
	}
	scale := 1.0 / math.Sqrt(sumSq/float64(len(x))+eps)

	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * scale * weight[i]
	}

	return out
}

// silu is the SiLU/Swish activation used in the SwiGLU MLP block.
func silu(x float64) float64 {
	return x / (1 + math.Exp(-x))
}

// ropeFreqs precomputes the per-dimension-pair rotation angle for a given
// sequence position, theta, and head dimension.
func ropeFreqs(pos int, headDim int, theta float64) (cos, sin []float64) {
	half := headDim / 2
	cos = make([]float64, half)
	sin = make([]float64, half)
	for i := 0; i < half; i++ {
		freq := 1.0 / math.Pow(theta, float64(2*i)/float64(headDim))
		angle := float64(pos) * freq
		cos[i] = math.Cos(angle)
		sin[i] = math.Sin(angle)
	}
	return cos, sin
}

// applyRoPE rotates a single head's vector in place using the rotate-half
// convention (the first half of the head dimension pairs with the second
// half, as in Llama/Qwen/Gemma).
func applyRoPE(vec []float64, pos int, theta float64) {
	headDim := len(vec)
	half := headDim / 2
	cos, sin := ropeFreqs(pos, headDim, theta)

	for i := 0; i < half; i++ {
		x1, x2 := vec[i], vec[i+half]
		vec[i] = x1*cos[i] - x2*sin[i]
		vec[i+half] = x2*cos[i] + x1*sin[i]
	}
}

// softmax normalizes x in place.
func softmax(x []float64) {
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}

	var sum float64
	for i, v := range x {
		e := math.Exp(v - max)
		x[i] = e
		sum += e
	}

	for i := range x {
		x[i] /= sum
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
