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

// Package worker runs one LocalRuntime on a dedicated goroutine, exchanging
// Prompt/Exit control messages and Chunk/End/Status responses with its
// caller over a pair of channels, the inbound side backed by a client-go
// rate-limiting work queue.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-local-runtime/pkg/events"
	"github.com/llm-d/llm-d-local-runtime/pkg/metrics"
	"github.com/llm-d/llm-d-local-runtime/pkg/runtime"
	"github.com/llm-d/llm-d-local-runtime/pkg/utils/logging"
)

// outboxCapacity bounds how many response Querys can queue up before publish
// blocks the worker goroutine waiting for the caller to Recv.
const outboxCapacity = 64

// Worker owns one LocalRuntime and the single goroutine that drives it.
// A Worker is constructed once per activation and discarded on Shutdown.
type Worker struct {
	name string
	rt   *runtime.LocalRuntime
	sink events.Sink

	// *runtime.Query, not runtime.Query: the work queue's internal dirty
	// set requires a comparable item type, and Query's slice fields
	// (Messages, Data, Tools) make the value type non-comparable.
	inbox  workqueue.TypedRateLimitingInterface[*runtime.Query]
	outbox chan runtime.Query
	wg     sync.WaitGroup

	initialized bool
}

// New builds an idle Worker around cfg. sink may be nil, in which case
// emitted events are dropped after being placed on the outbox.
func New(cfg *runtime.RuntimeConfig, sink events.Sink) *Worker {
	if sink == nil {
		sink = events.NewCallbackSink(nil)
	}
	return &Worker{
		name:   cfg.Name,
		rt:     runtime.NewLocalRuntime(cfg),
		sink:   sink,
		inbox:  workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[*runtime.Query]()),
		outbox: make(chan runtime.Query, outboxCapacity),
	}
}

// Send forwards query to the control inbox. Only Prompt and Exit are
// honored; anything else is logged and discarded by the worker goroutine.
func (w *Worker) Send(q runtime.Query) {
	w.inbox.Add(&q)
}

// Recv blocks for the next outbox value. ok is false once the outbox has
// been closed, which happens only after the worker goroutine has returned.
func (w *Worker) Recv() (runtime.Query, bool) {
	q, ok := <-w.outbox
	return q, ok
}

// Run spawns the worker goroutine. The caller joins it via Shutdown.
func (w *Worker) Run(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Shutdown sends Exit on a best-effort, non-blocking basis and waits for
// the worker goroutine to return.
func (w *Worker) Shutdown() {
	exit := runtime.NewExit()
	w.inbox.Add(&exit)
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	defer close(w.outbox)
	defer w.inbox.ShutDown()

	log := klog.FromContext(ctx).WithValues("runtime", w.name)

	for {
		q, shutdown := w.inbox.Get()
		if shutdown {
			return
		}

		switch q.Kind {
		case runtime.KindExit:
			w.inbox.Done(q)
			return

		case runtime.KindPrompt:
			w.handlePrompt(ctx, log, q)
			w.inbox.Done(q)

		default:
			log.V(logging.DEBUG).Info("discarding unsupported control message", "kind", q.Kind)
			w.inbox.Done(q)
		}
	}
}

func (w *Worker) handlePrompt(ctx context.Context, log klog.Logger, q *runtime.Query) {
	if !w.initialized {
		if err := w.rt.Init(ctx); err != nil {
			log.Error(err, "failed to initialize backend")
			w.emitStatus(err.Error())
			return
		}
		w.initialized = true
	}

	start := time.Now()
	usage, err := w.rt.Generate(ctx, *q, w.emitChunk)
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error(err, "generation failed")
		metrics.FailedGenerations.Inc()
		w.emitStatus(err.Error())
		return
	}

	w.publish(runtime.NewEnd(usage))
}

func (w *Worker) emitChunk(q runtime.Query) {
	metrics.ChunksEmitted.Inc()
	w.publish(q)
}

func (w *Worker) emitStatus(msg string) {
	w.publish(runtime.NewStatus(msg))
}

// eventName maps a response Query's Kind to the logical event name the host
// event sink sees, per the wire contract: Chunk/End/Status each surface
// under their own name regardless of internal Kind spelling.
func eventName(kind runtime.Kind) string {
	switch kind {
	case runtime.KindChunk:
		return "query-stream-chunk"
	case runtime.KindEnd:
		return "query-stream-end"
	default:
		return "query-stream-error"
	}
}

// publish puts q on the outbox and mirrors it to the event sink, best
// effort: a sink failure is logged but never blocks generation.
func (w *Worker) publish(q runtime.Query) {
	w.outbox <- q

	data, err := json.Marshal(q)
	if err != nil {
		return
	}
	if err := w.sink.Emit(eventName(q.Kind), data); err != nil {
		klog.Background().V(logging.DEBUG).Info("event sink emit failed", "err", err)
	}
}
