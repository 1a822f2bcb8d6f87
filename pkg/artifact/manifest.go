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

// Package artifact resolves on-disk model artifacts: sharded safetensors
// weight manifests and hub-cache directory layouts.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Manifest is the parsed form of a model.safetensors.index.json file: a
// metadata blob plus a map from tensor name to the shard file that holds it.
type Manifest struct {
	Metadata  map[string]string `json:"metadata"`
	WeightMap map[string]string `json:"weight_map"`
}

// LoadManifest reads and parses a sharded weight manifest from path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-supplied configuration, not request input
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	return &m, nil
}

// Files returns the ordered, de-duplicated list of shard file paths named by
// the manifest, joined under dir. Order is stable within one call but is not
// guaranteed to match any particular tensor ordering.
func (m *Manifest) Files(dir string) []string {
	seen := make(map[string]struct{}, len(m.WeightMap))
	files := make([]string, 0, len(m.WeightMap))

	for _, shard := range m.WeightMap {
		if _, ok := seen[shard]; ok {
			continue
		}
		seen[shard] = struct{}{}
		files = append(files, filepath.Join(dir, shard))
	}

	return files
}
