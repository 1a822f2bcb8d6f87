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

package template

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCompiledCacheSize bounds how many distinct template strings keep a
// parsed AST resident.
const defaultCompiledCacheSize = 64

// Processor renders Jinja-subset chat templates, caching parsed ASTs by the
// xxhash of the template source so a runtime re-rendering the same template
// across many prompts parses it once.
type Processor struct {
	cache *lru.Cache[uint64, *Template]
}

// NewProcessor creates a Processor with the default compiled-template cache
// size.
func NewProcessor() (*Processor, error) {
	cache, err := lru.New[uint64, *Template](defaultCompiledCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize template cache: %w", err)
	}

	return &Processor{cache: cache}, nil
}

// Render parses (or fetches from cache) src and renders it over context.
func (p *Processor) Render(src string, context map[string]any) (string, error) {
	key := xxhash.Sum64String(src)

	tmpl, ok := p.cache.Get(key)
	if !ok {
		var err error
		tmpl, err = Parse(src)
		if err != nil {
			return "", err
		}
		p.cache.Add(key, tmpl)
	}

	return tmpl.Render(context)
}
