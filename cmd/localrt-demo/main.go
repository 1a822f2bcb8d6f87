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

// Command localrt-demo exercises the service registry, worker, and Mock
// backend end to end without any real model weights on disk: it activates
// a Mock-family runtime, sends one Prompt, and prints every chunk the
// worker streams back until End.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/llm-d/llm-d-local-runtime/pkg/runtime"
	"github.com/llm-d/llm-d-local-runtime/pkg/service"
)

func main() {
	ctx := context.Background()

	reg, err := service.FromRuntimeConfigs([]*runtime.RuntimeConfig{
		{Name: "mock-demo"},
	}, nil)
	if err != nil {
		log.Fatalf("build registry: %v", err)
	}

	fmt.Println("Known models:", reg.ListModels())

	rt, err := reg.Activate(ctx, "mock-demo")
	if err != nil {
		log.Fatalf("activate mock-demo: %v", err)
	}

	prompt := runtime.NewPrompt([]runtime.Message{
		{Role: "user", Content: "Hello there!"},
	})
	rt.Send(prompt)

	for {
		q, ok := rt.Recv()
		if !ok {
			log.Fatal("runtime outbox closed before an End or Status arrived")
		}

		switch q.Kind {
		case runtime.KindChunk:
			fmt.Printf("chunk %d (%s): %s\n", q.ID, q.ChunkKind, string(q.Data))
		case runtime.KindEnd:
			fmt.Printf("done: prompt_tokens=%d completion_tokens=%d\n",
				q.Usage.PromptTokens, q.Usage.CompletionTokens)
			rt.Shutdown()
			return
		case runtime.KindStatus:
			log.Fatalf("generation failed: %s", q.Msg)
		}
	}
}
