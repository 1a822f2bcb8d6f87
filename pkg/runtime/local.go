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

// Package runtime implements the family-agnostic generation loop: render a
// chat template, tokenize, run a backend's forward pass autoregressively
// with sampling and repetition penalty, chunk the decoded output, and parse
// any trailing tool call.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/llm-d/llm-d-local-runtime/pkg/backend"
	"github.com/llm-d/llm-d-local-runtime/pkg/template"
	"github.com/llm-d/llm-d-local-runtime/pkg/utils"
	"github.com/llm-d/llm-d-local-runtime/pkg/utils/logging"
)

const (
	defaultMaxTokens = 500
	defaultChunkSize = 32
)

// tokenizerConfig is the subset of tokenizer_config.json the runtime reads.
type tokenizerConfig struct {
	BOSToken     string `json:"bos_token"`
	EOSToken     string `json:"eos_token"`
	ChatTemplate string `json:"chat_template"`
}

// modelConfigEOS is the subset of config.json needed to resolve EOS ids;
// eos_token_id may be a bare integer or a list in the wild.
type modelConfigEOS struct {
	EOSTokenID json.RawMessage `json:"eos_token_id"`
}

// codecBackend is implemented by backends (only Mock, today) that bypass
// chat templating and real tokenization in favor of a direct byte-level
// codec.
type codecBackend interface {
	Codec() backend.Codec
}

// codecEOS is implemented by codec backends that have their own stop
// signal (Mock's sentinel id marking the end of its echoed content) rather
// than an eos_token_id resolved from model/tokenizer config.
type codecEOS interface {
	EOSID() int32
}

// LocalRuntime runs one model's generation loop. It is not safe for
// concurrent use; Runtime Worker (C6) is the only caller, from its single
// goroutine.
type LocalRuntime struct {
	cfg *RuntimeConfig

	backend backend.Backend
	codec   backend.Codec // non-nil when backend bypasses templating/tokenizer

	tokenizer    *Tokenizer
	templateStr  string
	templateProc *template.Processor
	eosIDs       map[int32]bool
}

// NewLocalRuntime constructs an idle runtime from a validated config; it
// does no I/O until Init is called.
func NewLocalRuntime(cfg *RuntimeConfig) *LocalRuntime {
	return &LocalRuntime{cfg: cfg, eosIDs: map[int32]bool{}}
}

// Init loads the tokenizer, chat template, EOS ids, and backend. It is
// called once by the worker before the first Prompt.
func (r *LocalRuntime) Init(ctx context.Context) error {
	log := klog.FromContext(ctx)

	proc, err := template.NewProcessor()
	if err != nil {
		return fmt.Errorf("init template processor: %w", err)
	}
	r.templateProc = proc

	be, err := r.newBackend()
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	r.backend = be

	if cb, ok := be.(codecBackend); ok {
		r.codec = cb.Codec()
		log.V(logging.DEBUG).Info("backend exposes a codec, bypassing chat template and tokenizer", "name", r.cfg.Name)
		if ce, ok := be.(codecEOS); ok {
			r.eosIDs[ce.EOSID()] = true
		}
		return nil
	}

	var tcfg tokenizerConfig
	if r.cfg.TokenizerConfigFile != "" {
		data, err := os.ReadFile(r.cfg.TokenizerConfigFile)
		if err != nil {
			return fmt.Errorf("read tokenizer config: %w", err)
		}
		if err := json.Unmarshal(data, &tcfg); err != nil {
			return fmt.Errorf("decode tokenizer config: %w", err)
		}
	}

	if r.cfg.TokenizerFile == "" {
		return fmt.Errorf("runtime %q: tokenizer_file is required for non-mock backends", r.cfg.Name)
	}
	r.tokenizer, err = LoadTokenizer(r.cfg.TokenizerFile)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	r.eosIDs = r.resolveEOSIDs(tcfg)
	if len(r.eosIDs) == 0 {
		log.Info("no EOS ids resolved; generation will only stop at max_tokens", "name", r.cfg.Name)
	}

	r.templateStr = r.resolveTemplate(tcfg)

	return nil
}

func (r *LocalRuntime) newBackend() (backend.Backend, error) {
	dir := r.cfg.ModelDir
	if dir == "" && r.cfg.ModelFile != "" {
		dir = filepath.Dir(r.cfg.ModelFile)
	}
	return backend.New(backend.Source{Name: r.cfg.Name, Dir: dir})
}

// resolveEOSIDs reads eos_token_id (int or array) from config.json, falling
// back to looking up tokenizer_config's eos_token string in the tokenizer's
// vocabulary.
func (r *LocalRuntime) resolveEOSIDs(tcfg tokenizerConfig) map[int32]bool {
	ids := map[int32]bool{}

	if r.cfg.ModelConfigFile != "" {
		if data, err := os.ReadFile(r.cfg.ModelConfigFile); err == nil {
			var mcfg modelConfigEOS
			if err := json.Unmarshal(data, &mcfg); err == nil && len(mcfg.EOSTokenID) > 0 {
				var single int32
				var list []int32
				if err := json.Unmarshal(mcfg.EOSTokenID, &single); err == nil {
					ids[single] = true
				} else if err := json.Unmarshal(mcfg.EOSTokenID, &list); err == nil {
					for _, id := range list {
						ids[id] = true
					}
				}
			}
		}
	}

	if len(ids) == 0 && tcfg.EOSToken != "" && r.tokenizer != nil {
		if id, ok := r.tokenizer.TokenToID(tcfg.EOSToken); ok {
			ids[id] = true
		}
	}

	return ids
}

// resolveTemplate prefers tokenizer_config's chat_template, then
// template_file, then the empty string (meaning: use the "role: content\n"
// fallback at render time).
func (r *LocalRuntime) resolveTemplate(tcfg tokenizerConfig) string {
	if tcfg.ChatTemplate != "" {
		return tcfg.ChatTemplate
	}
	if r.cfg.TemplateFile != "" {
		if data, err := os.ReadFile(r.cfg.TemplateFile); err == nil {
			return string(data)
		}
	}
	return ""
}

// Generate runs one Prompt through the full loop described in §4.5: render,
// encode, prefill, autoregressive sample with repetition penalty, chunk,
// and a tool-call post-pass. emit is called once per Chunk in ascending id
// order starting at 0; Generate itself returns the usage summary (the
// worker wraps it into an End) or an error (already-emitted chunks stand;
// the worker reports the error instead of an End).
func (r *LocalRuntime) Generate(ctx context.Context, q Query, emit func(Query)) (TokenUsage, error) {
	log := klog.FromContext(ctx)

	promptTokens, err := r.encodePrompt(q)
	if err != nil {
		return TokenUsage{}, fmt.Errorf("render/encode prompt: %w", err)
	}

	r.backend.ClearKVCache()

	sampler := r.newSampler(q)

	logits, err := r.backend.Forward(promptTokens, 0)
	if err != nil {
		return TokenUsage{}, fmt.Errorf("prefill forward: %w", err)
	}

	penalty := defaultPenalty
	if q.Penalty != nil {
		penalty = *q.Penalty
	}

	maxTokens := defaultMaxTokens
	if q.MaxTokens > 0 {
		maxTokens = q.MaxTokens
	}

	generated := make([]int32, 0, maxTokens)

	// Each sampled token is appended before the EOS check, so a token that
	// terminates generation is itself the last entry of generated and is
	// counted in completion_tokens, matching the decode step that produced
	// it.
	next := sampler.Sample(logits)
	for step := 0; step < maxTokens; step++ {
		generated = append(generated, next)

		if r.eosIDs[next] {
			break
		}

		position := len(promptTokens) + len(generated) - 1
		logits, err = r.backend.Forward([]int32{next}, position)
		if err != nil {
			return TokenUsage{}, fmt.Errorf("decode step %d: %w", step, err)
		}

		applyRepetitionPenalty(logits, generated, penalty)
		next = sampler.Sample(logits)
	}

	chunkSize := defaultChunkSize
	if q.ChunkSize > 0 {
		chunkSize = q.ChunkSize
	}

	r.emitChunks(generated, chunkSize, emit)
	log.V(logging.TRACE).Info("generation complete", "name", r.cfg.Name, "completion_tokens", len(generated))

	r.emitToolCallIfPresent(generated, len(generated), chunkSize, emit)

	usage := TokenUsage{
		PromptTokens:     len(promptTokens),
		CompletionTokens: len(generated),
		TotalTokens:      len(promptTokens) + len(generated),
	}

	return usage, nil
}

func (r *LocalRuntime) encodePrompt(q Query) ([]int32, error) {
	if r.codec != nil {
		data, err := json.Marshal(q.Messages)
		if err != nil {
			return nil, fmt.Errorf("marshal messages for codec: %w", err)
		}
		return r.codec.Encode(string(data)), nil
	}

	rendered, err := r.renderPrompt(q)
	if err != nil {
		return nil, err
	}

	return r.tokenizer.Encode(rendered), nil
}

func (r *LocalRuntime) renderPrompt(q Query) (string, error) {
	if r.templateStr == "" {
		var b strings.Builder
		for _, m := range q.Messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		return b.String(), nil
	}

	messages := utils.SliceMap(q.Messages, func(m Message) map[string]any {
		return map[string]any{"role": m.Role, "content": m.Content}
	})

	context := map[string]any{
		"messages":              messages,
		"tools":                 q.Tools,
		"add_generation_prompt": true,
	}

	return r.templateProc.Render(r.templateStr, context)
}

func (r *LocalRuntime) newSampler(q Query) *Sampler {
	temperature := defaultTemperature
	if q.Temperature != nil {
		temperature = *q.Temperature
	}
	topK := defaultTopK
	if q.TopK != nil {
		topK = *q.TopK
	}
	topP := defaultTopP
	if q.TopP != nil {
		topP = *q.TopP
	}

	strategy := SamplingTopKThenTopP
	k, p, temp := topK, topP, temperature
	if q.SamplingConfig != nil {
		strategy = q.SamplingConfig.Strategy
		if q.SamplingConfig.K > 0 {
			k = q.SamplingConfig.K
		}
		if q.SamplingConfig.P > 0 {
			p = q.SamplingConfig.P
		}
		if q.SamplingConfig.Temperature > 0 {
			temp = q.SamplingConfig.Temperature
		}
	}

	seed := RandomSeed()
	if q.Seed != nil {
		seed = *q.Seed
	}

	return NewSampler(strategy, k, p, temp, seed)
}

// emitChunks decodes generated in fixed-size windows and emits one String
// Chunk per window, including a final partial window.
func (r *LocalRuntime) emitChunks(generated []int32, chunkSize int, emit func(Query)) {
	id := 0
	for start := 0; start < len(generated); start += chunkSize {
		end := start + chunkSize
		if end > len(generated) {
			end = len(generated)
		}

		text := r.decode(generated[start:end])
		emit(NewChunk(id, ChunkKindString, []byte(text), time.Now().Unix()))
		id++
	}
}

// emitToolCallIfPresent decodes the full generated sequence, asks the
// backend's tool-call parser (if any) to parse it, and emits a final
// ToolCall chunk on a non-empty result. Returns the next free chunk id.
func (r *LocalRuntime) emitToolCallIfPresent(generated []int32, tokenCount, chunkSize int, emit func(Query)) int {
	nextID := 0
	if tokenCount > 0 {
		nextID = (tokenCount + chunkSize - 1) / chunkSize
	}

	parser := r.backend.ToolCallParser()
	if parser == nil {
		return nextID
	}

	full := r.decode(generated)
	calls, ok := parser.Parse(full)
	if !ok || len(calls) == 0 {
		return nextID
	}

	data, err := json.Marshal(calls)
	if err != nil {
		return nextID
	}

	emit(NewChunk(nextID, ChunkKindToolCall, data, time.Now().Unix()))
	return nextID + 1
}

func (r *LocalRuntime) decode(tokens []int32) string {
	if r.codec != nil {
		return r.codec.Decode(tokens)
	}
	return r.tokenizer.Decode(tokens)
}
