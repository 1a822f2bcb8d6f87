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

package safetensors_test

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/safetensors"
)

// writeShard builds a minimal single-tensor safetensors file with a
// big-endian-agnostic F32 payload, mirroring the on-disk layout: an 8-byte
// little-endian header length, the JSON header, then raw tensor bytes.
func writeShard(t *testing.T, dir string, values []float32) string {
	t.Helper()

	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	header := map[string]safetensors.TensorInfo{
		"weight": {
			DType:       safetensors.DTypeF32,
			Shape:       []int{len(values)},
			DataOffsets: [2]int64{0, int64(len(data))},
		},
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))

	path := filepath.Join(dir, "model.safetensors")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = f.Write(headerJSON)
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)

	return path
}

func TestOpen_Float32Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := writeShard(t, dir, []float32{1, -2.5, 3.25, 0})

	f, err := safetensors.Open(path)
	require.NoError(t, err)
	assert.True(t, f.Has("weight"))
	assert.False(t, f.Has("missing"))

	vals, shape, err := f.Float32("weight")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, shape)
	assert.Equal(t, []float32{1, -2.5, 3.25, 0}, vals)
}

func TestOpen_MissingTensor(t *testing.T) {
	dir := t.TempDir()
	path := writeShard(t, dir, []float32{1})

	f, err := safetensors.Open(path)
	require.NoError(t, err)

	_, _, err = f.Float32("nope")
	assert.Error(t, err)
}

func TestBF16Upcast(t *testing.T) {
	dir := t.TempDir()

	// Build a shard by hand with a BF16 tensor: 1.0 is 0x3F80 in bf16.
	raw := []byte{0x80, 0x3f}
	header := map[string]safetensors.TensorInfo{
		"w": {DType: safetensors.DTypeBF16, Shape: []int{1}, DataOffsets: [2]int64{0, 2}},
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerJSON)))

	path := filepath.Join(dir, "bf16.safetensors")
	require.NoError(t, os.WriteFile(path, append(append(lenBuf[:], headerJSON...), raw...), 0o600))

	f, err := safetensors.Open(path)
	require.NoError(t, err)

	vals, _, err := f.Float32("w")
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.InDelta(t, 1.0, vals[0], 1e-6)
}
