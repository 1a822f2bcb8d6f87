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

package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/events"
	"github.com/llm-d/llm-d-local-runtime/pkg/runtime"
)

func drainUntilTerminal(t *testing.T, w *Worker) []runtime.Query {
	t.Helper()

	var got []runtime.Query
	for {
		q, ok := w.Recv()
		require.True(t, ok, "outbox closed before a terminal Query arrived")
		got = append(got, q)
		if q.Kind == runtime.KindEnd || q.Kind == runtime.KindStatus {
			return got
		}
	}
}

func TestWorker_PromptProducesChunksThenEnd(t *testing.T) {
	cfg := &runtime.RuntimeConfig{Name: "mock-worker"}
	var emitted []string
	sink := events.NewCallbackSink(func(eventName string, _ []byte) {
		emitted = append(emitted, eventName)
	})

	w := New(cfg, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	w.Send(runtime.NewPrompt([]runtime.Message{{Role: "user", Content: "hi"}}))

	got := drainUntilTerminal(t, w)
	last := got[len(got)-1]
	require.Equal(t, runtime.KindEnd, last.Kind)
	require.NotNil(t, last.Usage)
	assert.Greater(t, last.Usage.PromptTokens, 0)
	assert.Contains(t, emitted, "query-stream-end")

	var echoed strings.Builder
	for _, q := range got {
		if q.Kind == runtime.KindChunk && q.ChunkKind == runtime.ChunkKindString {
			echoed.Write(q.Data)
		}
	}
	assert.Equal(t, "hi", echoed.String(), "Mock's echo must decode deterministically across repeated runs")

	w.Shutdown()
}

func TestWorker_DiscardsUnsupportedControlMessage(t *testing.T) {
	cfg := &runtime.RuntimeConfig{Name: "mock-discard"}
	w := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	w.Send(runtime.NewStatus("should be discarded by the worker, not echoed"))
	w.Send(runtime.NewPrompt([]runtime.Message{{Role: "user", Content: "ok"}}))

	got := drainUntilTerminal(t, w)
	require.NotEmpty(t, got)
	assert.Equal(t, runtime.KindEnd, got[len(got)-1].Kind)

	w.Shutdown()
}

func TestWorker_ShutdownJoinsGoroutine(t *testing.T) {
	cfg := &runtime.RuntimeConfig{Name: "mock-shutdown"}
	w := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Run(ctx)

	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not join the worker goroutine in time")
	}

	_, ok := w.Recv()
	assert.False(t, ok, "outbox should be closed after Shutdown")
}
