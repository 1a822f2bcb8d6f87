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
	"os"
	"path/filepath"
	"strings"

	"github.com/llm-d/llm-d-local-runtime/pkg/artifact"
)

const (
	manifestFileName = "model.safetensors.index.json"
	singleFileName   = "model.safetensors"
	configFileName   = "config.json"
	mockModelName    = "mock"
)

// Source describes where a model's weights and config live, and the name
// used to pick a decoder family. Name is typically the Hugging Face repo's
// trailing path component (e.g. "Qwen3-0.6B", "Meta-Llama-3-8B-Instruct",
// "gemma-3-4b-it") or the literal "mock".
type Source struct {
	Name string
	Dir  string
}

// New constructs the Backend appropriate for src, dispatching on a
// substring match against src.Name in the same priority order the model
// naming conventions this loader recognizes: Mock first (so a test/demo
// model named e.g. "mock-qwen" still resolves to MockBackend), then Qwen,
// then Llama3/Llama, then Gemma.
func New(src Source) (Backend, error) {
	lower := strings.ToLower(src.Name)

	switch {
	case strings.Contains(lower, mockModelName):
		return NewMockBackend(), nil

	case strings.Contains(src.Name, "Qwen"), strings.Contains(lower, "qwen"):
		cfg, loader, err := openSource(src)
		if err != nil {
			return nil, err
		}
		return NewQwen3Backend(loader, cfg)

	case strings.Contains(src.Name, "Llama"), strings.Contains(lower, "llama"):
		cfg, loader, err := openSource(src)
		if err != nil {
			return nil, err
		}
		return NewLlamaBackend(loader, cfg)

	case strings.Contains(lower, "gemma"):
		cfg, loader, err := openSource(src)
		if err != nil {
			return nil, err
		}
		return NewGemma3Backend(loader, cfg)

	default:
		return nil, fmt.Errorf("backend: no decoder family recognizes model name %q", src.Name)
	}
}

func openSource(src Source) (*ModelConfig, *WeightLoader, error) {
	cfg, err := LoadConfig(filepath.Join(src.Dir, configFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("backend %q: %w", src.Name, err)
	}

	manifestPath := filepath.Join(src.Dir, manifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		manifest, err := artifact.LoadManifest(manifestPath)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %q: %w", src.Name, err)
		}
		loader, err := NewWeightLoaderFromManifest(src.Dir, manifest)
		if err != nil {
			return nil, nil, fmt.Errorf("backend %q: %w", src.Name, err)
		}
		return cfg, loader, nil
	}

	singlePath := filepath.Join(src.Dir, singleFileName)
	if _, err := os.Stat(singlePath); err != nil {
		return nil, nil, fmt.Errorf("backend %q: no %s or %s found under %s",
			src.Name, manifestFileName, singleFileName, src.Dir)
	}

	loader, err := NewWeightLoaderFromFile(singlePath)
	if err != nil {
		return nil, nil, fmt.Errorf("backend %q: %w", src.Name, err)
	}

	return cfg, loader, nil
}
