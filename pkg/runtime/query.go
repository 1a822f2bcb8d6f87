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

// Kind discriminates the variants of Query, the single wire type carried by
// both the worker's control inbox and its response outbox.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindResponse Kind = "response"
	KindChunk    Kind = "chunk"
	KindEnd      Kind = "end"
	KindExit     Kind = "exit"
	KindStatus   Kind = "status"
)

// ChunkKind discriminates what a Chunk's Data holds.
type ChunkKind string

const (
	ChunkKindString   ChunkKind = "string"
	ChunkKindBytes    ChunkKind = "bytes"
	ChunkKindToolCall ChunkKind = "tool_call"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" msgpack:"role"`
	Content string `json:"content" msgpack:"content"`
}

// SamplingStrategy names one of the next-token selection strategies a
// Prompt may request.
type SamplingStrategy string

const (
	SamplingArgMax        SamplingStrategy = "arg_max"
	SamplingAll           SamplingStrategy = "all"
	SamplingTopK          SamplingStrategy = "top_k"
	SamplingTopP          SamplingStrategy = "top_p"
	SamplingTopKThenTopP  SamplingStrategy = "top_k_then_top_p"
	SamplingGumbelSoftmax SamplingStrategy = "gumbel_softmax"
)

// SamplingConfig names a strategy and its parameters, distinct from the
// flat temperature/top_k/top_p overrides a Prompt can also carry directly.
type SamplingConfig struct {
	Strategy    SamplingStrategy `json:"strategy" msgpack:"strategy"`
	K           int              `json:"k,omitempty" msgpack:"k,omitempty"`
	P           float64          `json:"p,omitempty" msgpack:"p,omitempty"`
	Temperature float64          `json:"temperature,omitempty" msgpack:"temperature,omitempty"`
}

// TokenUsage summarizes one completed generation.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens" msgpack:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" msgpack:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" msgpack:"total_tokens"`
}

// Query is the single tagged-union type flowing through a runtime's control
// inbox (Prompt, Exit) and response outbox (Chunk, End, Status). Kind
// selects which group of fields is meaningful; unused fields are left zero.
type Query struct {
	Kind Kind `json:"kind" msgpack:"kind"`

	// Prompt fields.
	Messages       []Message       `json:"messages,omitempty" msgpack:"messages,omitempty"`
	Tools          []string        `json:"tools,omitempty" msgpack:"tools,omitempty"`
	ChunkSize      int             `json:"chunk_size,omitempty" msgpack:"chunk_size,omitempty"`
	Timestamp      int64           `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty" msgpack:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty" msgpack:"temperature,omitempty"`
	TopK           *int            `json:"top_k,omitempty" msgpack:"top_k,omitempty"`
	TopP           *float64        `json:"top_p,omitempty" msgpack:"top_p,omitempty"`
	Think          bool            `json:"think,omitempty" msgpack:"think,omitempty"`
	Stream         bool            `json:"stream,omitempty" msgpack:"stream,omitempty"`
	Model          string          `json:"model,omitempty" msgpack:"model,omitempty"`
	Penalty        *float64        `json:"penalty,omitempty" msgpack:"penalty,omitempty"`
	Seed           *uint64         `json:"seed,omitempty" msgpack:"seed,omitempty"`
	SamplingConfig *SamplingConfig `json:"sampling_config,omitempty" msgpack:"sampling_config,omitempty"`

	// Response fields.
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`

	// Chunk fields.
	ID        int       `json:"id,omitempty" msgpack:"id,omitempty"`
	Data      []byte    `json:"data,omitempty" msgpack:"data,omitempty"`
	ChunkKind ChunkKind `json:"chunk_kind,omitempty" msgpack:"chunk_kind,omitempty"`

	// End fields.
	Usage *TokenUsage `json:"usage,omitempty" msgpack:"usage,omitempty"`

	// Status fields.
	Msg string `json:"msg,omitempty" msgpack:"msg,omitempty"`
}

// NewPrompt builds a Prompt query with the given messages and zero-valued
// overrides; callers set fields directly on the returned value before
// sending it.
func NewPrompt(messages []Message) Query {
	return Query{Kind: KindPrompt, Messages: messages}
}

// NewChunk builds a Chunk query.
func NewChunk(id int, kind ChunkKind, data []byte, timestamp int64) Query {
	return Query{Kind: KindChunk, ID: id, ChunkKind: kind, Data: data, Timestamp: timestamp}
}

// NewEnd builds an End query.
func NewEnd(usage TokenUsage) Query {
	return Query{Kind: KindEnd, Usage: &usage}
}

// NewStatus builds a Status query carrying an error message.
func NewStatus(msg string) Query {
	return Query{Kind: KindStatus, Msg: msg}
}

// NewExit builds an Exit query.
func NewExit() Query {
	return Query{Kind: KindExit}
}
