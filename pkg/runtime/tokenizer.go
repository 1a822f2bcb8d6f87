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

package runtime

import (
	"fmt"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// tokenizerCacheSize bounds how many distinct tokenizer.json files stay
// loaded at once; re-activating a previously-used model's config reuses the
// already-parsed tokenizer instead of reloading it from disk.
const tokenizerCacheSize = 8

// tokenizerCache loads HuggingFace tokenizer.json files by path, caching
// the parsed result and deduplicating concurrent loads of the same path,
// mirroring the LRU+singleflight shape used for hub-cache resolution.
type tokenizerCache struct {
	cache *lru.Cache[string, *tokenizers.Tokenizer]
	group singleflight.Group
}

var defaultTokenizerCache = mustNewTokenizerCache()

func mustNewTokenizerCache() *tokenizerCache {
	c, err := newTokenizerCache()
	if err != nil {
		panic(err)
	}
	return c
}

func newTokenizerCache() (*tokenizerCache, error) {
	cache, err := lru.New[string, *tokenizers.Tokenizer](tokenizerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer cache: %w", err)
	}
	return &tokenizerCache{cache: cache}, nil
}

func (c *tokenizerCache) load(path string) (*tokenizers.Tokenizer, error) {
	if tk, ok := c.cache.Get(path); ok {
		return tk, nil
	}

	result, err, _ := c.group.Do(path, func() (any, error) {
		return tokenizers.FromFile(path)
	})
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", path, err)
	}

	tk, ok := result.(*tokenizers.Tokenizer)
	if !ok {
		return nil, fmt.Errorf("unexpected tokenizer type from singleflight result")
	}

	c.cache.Add(path, tk)

	return tk, nil
}

// Tokenizer encodes and decodes text against one loaded tokenizer.json.
type Tokenizer struct {
	tk *tokenizers.Tokenizer
}

// LoadTokenizer loads (or fetches from cache) the tokenizer at path.
func LoadTokenizer(path string) (*Tokenizer, error) {
	tk, err := defaultTokenizerCache.load(path)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{tk: tk}, nil
}

// Encode tokenizes text into ids, including any special tokens the
// tokenizer's post-processor adds.
func (t *Tokenizer) Encode(text string) []int32 {
	resp := t.tk.EncodeWithOptions(text, true, tokenizers.WithReturnTypeIDs())

	ids := make([]int32, len(resp.IDs))
	for i, id := range resp.IDs {
		ids[i] = int32(id)
	}
	return ids
}

// Decode renders ids back to text, dropping special tokens.
func (t *Tokenizer) Decode(ids []int32) string {
	uids := make([]uint32, len(ids))
	for i, id := range ids {
		uids[i] = uint32(id)
	}
	return t.tk.Decode(uids, true)
}

// TokenToID looks up a special token's id by its literal string form (e.g.
// an `eos_token` string from tokenizer_config.json), returning false if the
// tokenizer's vocabulary doesn't contain it.
func (t *Tokenizer) TokenToID(token string) (int32, bool) {
	id, ok := t.tk.TokenToID(token)
	if !ok {
		return 0, false
	}
	return int32(id), true
}
