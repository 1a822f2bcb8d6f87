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

// layerKVCache accumulates the per-head key and value vectors produced at
// every decoded position for one decoder layer, so later positions attend
// over the full prefix without recomputing it.
type layerKVCache struct {
	keys   [][][]float64 // [position][kvHead][headDim]
	values [][][]float64
}

func newLayerKVCache() *layerKVCache {
	return &layerKVCache{}
}

func (c *layerKVCache) append(keys, values [][]float64) {
	c.keys = append(c.keys, keys)
	c.values = append(c.values, values)
}

func (c *layerKVCache) len() int {
	return len(c.keys)
}

// KVCache holds one layerKVCache per decoder layer.
type KVCache struct {
	layers []*layerKVCache
}

// NewKVCache allocates an empty cache for a model with the given layer
// count.
func NewKVCache(numLayers int) *KVCache {
	layers := make([]*layerKVCache, numLayers)
	for i := range layers {
		layers[i] = newLayerKVCache()
	}
	return &KVCache{layers: layers}
}

// Reset clears every layer's accumulated state.
func (c *KVCache) Reset() {
	for _, l := range c.layers {
		l.keys = nil
		l.values = nil
	}
}
