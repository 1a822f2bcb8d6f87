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

// Package service hosts the model registry: it indexes known runtime
// configs by name and owns the single runtime the host embedding has
// activated at any given time.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-local-runtime/pkg/events"
	"github.com/llm-d/llm-d-local-runtime/pkg/metrics"
	"github.com/llm-d/llm-d-local-runtime/pkg/runtime"
	"github.com/llm-d/llm-d-local-runtime/pkg/worker"
)

// Runtime pairs an activated worker with the config name it was activated
// under.
type Runtime struct {
	Name string

	worker *worker.Worker
}

// Send forwards query to the underlying worker's control inbox.
func (r *Runtime) Send(q runtime.Query) { r.worker.Send(q) }

// Recv blocks for the worker's next response Query.
func (r *Runtime) Recv() (runtime.Query, bool) { return r.worker.Recv() }

// Shutdown stops the underlying worker and joins its goroutine.
func (r *Runtime) Shutdown() { r.worker.Shutdown() }

// Registry indexes RuntimeConfigs by name and tracks the single activated
// Runtime. At most one runtime is active at a time; Activate is the only
// mutation of that slot.
type Registry struct {
	configsMu sync.RWMutex
	configs   map[string]*runtime.RuntimeConfig

	sink events.Sink

	activeMu sync.Mutex
	active   *Runtime
}

// NewRegistry builds an empty registry. sink is handed to every Worker this
// registry activates, and may be nil.
func NewRegistry(sink events.Sink) *Registry {
	return &Registry{configs: map[string]*runtime.RuntimeConfig{}, sink: sink}
}

// FromDir scans dir non-recursively for *.json runtime-config files and
// loads each one into a new registry.
func FromDir(dir string, sink events.Sink) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("service: read config dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	return FromPaths(paths, sink)
}

// FromPaths loads a RuntimeConfig from each path into a new registry.
func FromPaths(paths []string, sink events.Sink) (*Registry, error) {
	reg := NewRegistry(sink)
	for _, p := range paths {
		cfg, err := runtime.LoadRuntimeConfig(p)
		if err != nil {
			return nil, fmt.Errorf("service: load runtime config %s: %w", p, err)
		}
		reg.configs[cfg.Name] = cfg
	}
	return reg, nil
}

// FromRuntimeConfigs builds a registry directly from already-parsed,
// already-validated configs.
func FromRuntimeConfigs(configs []*runtime.RuntimeConfig, sink events.Sink) (*Registry, error) {
	reg := NewRegistry(sink)
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		reg.configs[cfg.Name] = cfg
	}
	return reg, nil
}

// ListModels returns every known config name in ascending order.
func (reg *Registry) ListModels() []string {
	reg.configsMu.RLock()
	defer reg.configsMu.RUnlock()

	names := make([]string, 0, len(reg.configs))
	for name := range reg.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddConfig decodes rawJSON into a RuntimeConfig and inserts or overwrites
// the entry for its name.
func (reg *Registry) AddConfig(rawJSON []byte) error {
	cfg, err := runtime.ParseRuntimeConfig(rawJSON)
	if err != nil {
		return err
	}
	reg.AddConfigValue(cfg)
	return nil
}

// AddConfigValue inserts or overwrites the entry for config.Name.
func (reg *Registry) AddConfigValue(config *runtime.RuntimeConfig) {
	reg.configsMu.Lock()
	defer reg.configsMu.Unlock()
	reg.configs[config.Name] = config
}

// Activate shuts down any currently-active runtime, then instantiates and
// runs a fresh one from the named config, storing and returning it.
func (reg *Registry) Activate(ctx context.Context, name string) (*Runtime, error) {
	reg.configsMu.RLock()
	cfg, ok := reg.configs[name]
	reg.configsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("service: no runtime config named %q", name)
	}

	reg.activeMu.Lock()
	defer reg.activeMu.Unlock()

	if reg.active != nil {
		klog.FromContext(ctx).Info("shutting down previously active runtime", "name", reg.active.Name)
		reg.active.Shutdown()
		metrics.ActiveRuntimes.Dec()
		reg.active = nil
	}

	w := worker.New(cfg, reg.sink)
	w.Run(ctx)

	rt := &Runtime{Name: name, worker: w}
	reg.active = rt
	metrics.ActiveRuntimes.Inc()

	return rt, nil
}

// Runtime returns the currently active runtime, if any.
func (reg *Registry) Runtime() (*Runtime, bool) {
	reg.activeMu.Lock()
	defer reg.activeMu.Unlock()
	return reg.active, reg.active != nil
}
