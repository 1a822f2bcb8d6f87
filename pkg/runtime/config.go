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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfig is wrapped by every RuntimeConfig validation failure.
var ErrInvalidConfig = errors.New("invalid runtime config")

// RuntimeConfig is the immutable, deserialized description of one model a
// Service can activate. Path fields name on-disk artifacts; Name drives
// backend family dispatch by substring match.
type RuntimeConfig struct {
	Name                string `json:"name"`
	TokenizerFile       string `json:"tokenizer_file,omitempty"`
	TokenizerConfigFile string `json:"tokenizer_config_file,omitempty"`
	ModelConfigFile     string `json:"model_config_file,omitempty"`
	ModelIndexFile      string `json:"model_index_file,omitempty"`
	ModelFile           string `json:"model_file,omitempty"`
	ModelDir            string `json:"model_dir,omitempty"`
	TemplateFile        string `json:"template_file,omitempty"`
}

// ParseRuntimeConfig decodes and validates a RuntimeConfig from JSON bytes.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRuntimeConfig reads and validates a RuntimeConfig from a JSON file.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}
	return ParseRuntimeConfig(data)
}

// isMockName reports whether name dispatches to the Mock backend, the only
// family exempt from the sharded/single-file artifact invariant below.
func isMockName(name string) bool {
	return strings.Contains(strings.ToLower(name), "mock")
}

// Validate enforces the sharded-or-single-file artifact invariant: either
// ModelIndexFile+ModelDir+ModelConfigFile are set, or ModelFile+
// ModelConfigFile are set. Mock-dispatched configs need neither.
func (c *RuntimeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if isMockName(c.Name) {
		return nil
	}

	sharded := c.ModelIndexFile != "" && c.ModelDir != "" && c.ModelConfigFile != ""
	single := c.ModelFile != "" && c.ModelConfigFile != ""
	if !sharded && !single {
		return fmt.Errorf(
			"%w: %q must set either (model_index_file, model_dir, model_config_file) or (model_file, model_config_file)",
			ErrInvalidConfig, c.Name)
	}

	return nil
}
