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

// Package safetensors reads the safetensors tensor container format used by
// Hugging Face model shards: an 8-byte little-endian header length, a JSON
// header describing each tensor's dtype/shape/byte offsets, and a raw data
// segment that follows.
//
// There is no third-party Go library in this project's dependency set for
// this format, so the parser is a small, self-contained reader over the
// standard library (encoding/binary and encoding/json). It upcasts the BF16
// and F16 storage formats the original models are shipped in to float32,
// since nothing downstream needs the packed representation.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
)

// DType enumerates the tensor storage formats this reader understands.
type DType string

const (
	DTypeBF16 DType = "BF16"
	DTypeF16  DType = "F16"
	DTypeF32  DType = "F32"
	DTypeI64  DType = "I64"
	DTypeI32  DType = "I32"
	DTypeU8   DType = "U8"
	DTypeBool DType = "BOOL"
)

// TensorInfo describes one tensor's placement within a shard's data segment.
type TensorInfo struct {
	DType       DType    `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File is a parsed safetensors shard: the tensor directory plus the
// underlying file path, reopened per read so callers can hold many Files
// without exhausting descriptors.
type File struct {
	path      string
	headerLen int64
	tensors   map[string]TensorInfo
	Metadata  map[string]string
}

// Open parses a safetensors shard's header without reading tensor data.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open safetensors shard: %w", err)
	}
	defer f.Close()

	var lenBuf [8]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read safetensors header length: %w", err)
	}
	headerLen := int64(binary.LittleEndian.Uint64(lenBuf[:]))

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("read safetensors header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("decode safetensors header: %w", err)
	}

	tensors := make(map[string]TensorInfo, len(raw))
	var metadata map[string]string
	for name, msg := range raw {
		if name == "__metadata__" {
			if err := json.Unmarshal(msg, &metadata); err != nil {
				return nil, fmt.Errorf("decode safetensors metadata: %w", err)
			}
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("decode safetensors tensor %q: %w", name, err)
		}
		tensors[name] = info
	}

	return &File{
		path:      path,
		headerLen: 8 + headerLen,
		tensors:   tensors,
		Metadata:  metadata,
	}, nil
}

// Names returns the tensor names present in this shard.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.tensors))
	for name := range f.tensors {
		names = append(names, name)
	}
	return names
}

// Has reports whether a tensor is present in this shard.
func (f *File) Has(name string) bool {
	_, ok := f.tensors[name]
	return ok
}

// Float32 reads a tensor and upcasts it to float32, regardless of its
// on-disk storage dtype.
func (f *File) Float32(name string) ([]float32, []int, error) {
	info, ok := f.tensors[name]
	if !ok {
		return nil, nil, fmt.Errorf("tensor %q not found in %s", name, f.path)
	}

	raw, err := f.readRange(info.DataOffsets[0], info.DataOffsets[1])
	if err != nil {
		return nil, nil, err
	}

	vals, err := upcast(info.DType, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	return vals, info.Shape, nil
}

func (f *File) readRange(start, end int64) ([]byte, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open safetensors shard: %w", err)
	}
	defer fh.Close()

	n := end - start
	buf := make([]byte, n)
	if _, err := fh.ReadAt(buf, f.headerLen+start); err != nil {
		return nil, fmt.Errorf("read tensor bytes: %w", err)
	}

	return buf, nil
}

func upcast(dtype DType, raw []byte) ([]float32, error) {
	switch dtype {
	case DTypeF32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case DTypeBF16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = math.Float32frombits(uint32(bits) << 16)
		}
		return out, nil
	case DTypeF16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q for float32 upcast", dtype)
	}
}

// float16ToFloat32 converts an IEEE-754 binary16 value to float32.
func float16ToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := (h >> 10) & 0x1f
	frac := uint32(h & 0x3ff)

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal
		for frac&0x400 == 0 {
			frac <<= 1
			exp--
		}
		exp++
		frac &= 0x3ff
	case 0x1f:
		bits := sign | 0xff<<23
		if frac != 0 {
			bits |= frac << 13
		}
		return math.Float32frombits(bits)
	}

	bits := sign | ((uint32(exp)+112)<<23) | (frac << 13)
	return math.Float32frombits(bits)
}
