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

package artifact_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/artifact"
)

func writeManifest(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "model.safetensors.index.json")
	content := `{
		"metadata": {"total_size": "123"},
		"weight_map": {
			"model.layers.0.weight": "model-00001-of-00002.safetensors",
			"model.layers.1.weight": "model-00002-of-00002.safetensors",
			"model.layers.2.weight": "model-00001-of-00002.safetensors"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadManifest_Files_Deduplicated(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir)

	m, err := artifact.LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "123", m.Metadata["total_size"])

	files := m.Files(dir)
	assert.Len(t, files, 2)

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"model-00001-of-00002.safetensors",
		"model-00002-of-00002.safetensors",
	}, names)
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := artifact.LoadManifest(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
