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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/artifact"
)

func TestCachedResolver_ServesFromCache(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "org", "name")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	for _, name := range []string{"tokenizer.json", "config.json", "model.safetensors"} {
		require.NoError(t, os.WriteFile(filepath.Join(repoDir, name), []byte("{}"), 0o600))
	}

	resolver, err := artifact.NewCachedResolver()
	require.NoError(t, err)

	first, err := resolver.Resolve("org/name", root)
	require.NoError(t, err)

	// remove the backing files; a cache hit must not need to re-probe.
	require.NoError(t, os.RemoveAll(repoDir))

	second, err := resolver.Resolve("org/name", root)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCachedResolver_ConcurrentResolutionsCollapse(t *testing.T) {
	root := t.TempDir()
	repoDir := filepath.Join(root, "org", "name")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	for _, name := range []string{"tokenizer.json", "config.json", "model.safetensors"} {
		require.NoError(t, os.WriteFile(filepath.Join(repoDir, name), []byte("{}"), 0o600))
	}

	resolver, err := artifact.NewCachedResolver()
	require.NoError(t, err)

	const goroutines = 8
	var wg sync.WaitGroup
	results := make([]*artifact.ResolvedPaths, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = resolver.Resolve("org/name", root)
		}(i)
	}
	wg.Wait()

	for i := 0; i < goroutines; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0], results[i])
	}
}
