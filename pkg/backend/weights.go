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
	"path/filepath"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/llm-d/llm-d-local-runtime/pkg/artifact"
	"github.com/llm-d/llm-d-local-runtime/pkg/safetensors"
)

// shardCacheCost is charged per cached opened shard; ristretto's cost budget
// below is tuned to keep a handful of multi-gigabyte shard directories
// (their parsed headers, not their tensor bytes) resident for the lifetime of
// one WeightLoader.
const shardCacheCost = 1

// WeightLoader resolves named tensors to float32 slices, reading them out of
// one or more safetensors shards described by a weight-map manifest (or, for
// single-file checkpoints, a lone shard). Parsed shard headers are cached by
// path within the loader, so tensors from the same shard share one parse;
// each loader has its own cache, so a new loader parses its shards again.
type WeightLoader struct {
	dir       string
	weightMap map[string]string // tensor name -> shard file name
	single    string            // non-empty for a single model.safetensors file
	cache     *ristretto.Cache[string, *safetensors.File]
}

// NewWeightLoaderFromManifest builds a loader backed by a sharded model
// described by a `*.safetensors.index.json` manifest.
func NewWeightLoaderFromManifest(dir string, manifest *artifact.Manifest) (*WeightLoader, error) {
	cache, err := newShardCache()
	if err != nil {
		return nil, err
	}

	return &WeightLoader{dir: dir, weightMap: manifest.WeightMap, cache: cache}, nil
}

// NewWeightLoaderFromFile builds a loader backed by a single
// `model.safetensors` file (no index manifest).
func NewWeightLoaderFromFile(path string) (*WeightLoader, error) {
	cache, err := newShardCache()
	if err != nil {
		return nil, err
	}

	return &WeightLoader{single: path, cache: cache}, nil
}

func newShardCache() (*ristretto.Cache[string, *safetensors.File], error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *safetensors.File]{
		NumCounters: 128,
		MaxCost:     64,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize shard cache: %w", err)
	}

	return cache, nil
}

func (l *WeightLoader) shardFor(tensor string) (string, error) {
	if l.single != "" {
		return l.single, nil
	}

	name, ok := l.weightMap[tensor]
	if !ok {
		return "", fmt.Errorf("tensor %q not present in weight map", tensor)
	}

	return filepath.Join(l.dir, name), nil
}

func (l *WeightLoader) shard(path string) (*safetensors.File, error) {
	if f, ok := l.cache.Get(path); ok {
		return f, nil
	}

	f, err := safetensors.Open(path)
	if err != nil {
		return nil, err
	}

	l.cache.Set(path, f, shardCacheCost)
	l.cache.Wait()

	return f, nil
}

// Get returns a tensor's values and shape.
func (l *WeightLoader) Get(name string) ([]float32, []int, error) {
	path, err := l.shardFor(name)
	if err != nil {
		return nil, nil, err
	}

	shard, err := l.shard(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open shard for %q: %w", name, err)
	}

	vals, shape, err := shard.Float32(name)
	if err != nil {
		return nil, nil, err
	}

	return vals, shape, nil
}

// MustGet is Get, treating a missing tensor as a programmer error in the
// caller's name table rather than a runtime condition.
func (l *WeightLoader) MustGet(name string) ([]float32, []int) {
	vals, shape, err := l.Get(name)
	if err != nil {
		panic(err)
	}

	return vals, shape
}
