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

package artifact

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// defaultResolverCacheSize bounds the number of distinct (repo, cacheRoot)
// resolutions kept in memory.
const defaultResolverCacheSize = 128

// CachedResolver wraps ResolveHubCache with an LRU of previously resolved
// repositories and singleflight de-duplication of concurrent resolutions of
// the same repository.
type CachedResolver struct {
	cache *lru.Cache[uint64, *ResolvedPaths]
	group singleflight.Group
}

// NewCachedResolver creates a CachedResolver with the default cache size.
func NewCachedResolver() (*CachedResolver, error) {
	cache, err := lru.New[uint64, *ResolvedPaths](defaultResolverCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hub-cache resolution cache: %w", err)
	}

	return &CachedResolver{cache: cache}, nil
}

// Resolve resolves repo under cacheRoot, serving from cache when possible and
// collapsing concurrent callers for the same key into a single filesystem
// probe.
func (c *CachedResolver) Resolve(repo, cacheRoot string) (*ResolvedPaths, error) {
	key, err := resolutionKey(repo, cacheRoot)
	if err != nil {
		return nil, err
	}

	if resolved, ok := c.cache.Get(key); ok {
		return resolved, nil
	}

	result, err, _ := c.group.Do(fmt.Sprintf("%d", key), func() (any, error) {
		return ResolveHubCache(repo, cacheRoot)
	})
	if err != nil {
		return nil, err
	}

	resolved, ok := result.(*ResolvedPaths)
	if !ok {
		return nil, fmt.Errorf("unexpected resolution result type")
	}

	c.cache.Add(key, resolved)

	return resolved, nil
}

// resolutionKey deterministically hashes (repo, cacheRoot) via canonical CBOR
// encoding, aligned with how the rest of the codebase derives cache keys from
// structured payloads.
func resolutionKey(repo, cacheRoot string) (uint64, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return 0, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	b, err := encMode.Marshal([]string{repo, cacheRoot})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal resolution key: %w", err)
	}

	sum := sha256.Sum256(b)
	return binary.BigEndian.Uint64(sum[24:]), nil
}
