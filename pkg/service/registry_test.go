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

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/runtime"
)

func TestRegistry_ListModelsIsSortedByName(t *testing.T) {
	reg, err := FromRuntimeConfigs([]*runtime.RuntimeConfig{
		{Name: "mock-zebra"},
		{Name: "mock-apple"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"mock-apple", "mock-zebra"}, reg.ListModels())
}

func TestRegistry_AddConfigValueOverwritesByName(t *testing.T) {
	reg := NewRegistry(nil)
	reg.AddConfigValue(&runtime.RuntimeConfig{Name: "mock-a", TemplateFile: "v1"})
	reg.AddConfigValue(&runtime.RuntimeConfig{Name: "mock-a", TemplateFile: "v2"})

	require.Len(t, reg.ListModels(), 1)
	assert.Equal(t, "v2", reg.configs["mock-a"].TemplateFile)
}

func TestRegistry_ActivateUnknownNameErrors(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Activate(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestRegistry_ActivateReplacesPreviousRuntime(t *testing.T) {
	reg, err := FromRuntimeConfigs([]*runtime.RuntimeConfig{
		{Name: "mock-one"},
		{Name: "mock-two"},
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()

	first, err := reg.Activate(ctx, "mock-one")
	require.NoError(t, err)

	active, ok := reg.Runtime()
	require.True(t, ok)
	assert.Same(t, first, active)

	second, err := reg.Activate(ctx, "mock-two")
	require.NoError(t, err)

	active, ok = reg.Runtime()
	require.True(t, ok)
	assert.Same(t, second, active)
	assert.Equal(t, "mock-two", active.Name)
}
