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

package backend_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-local-runtime/pkg/backend"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func TestMockBackend_EchoesLastMessage(t *testing.T) {
	mock := backend.NewMockBackend()
	codec := mock.Codec()

	messages := []chatMessage{{Role: "user", Content: "Hello"}}
	prompt, err := json.Marshal(messages)
	require.NoError(t, err)

	promptTokens := codec.Encode(string(prompt))

	lastLogits, err := mock.Forward(promptTokens, 0)
	require.NoError(t, err)

	var completion []int32
	pos := len(promptTokens)
	for len(completion) < 5 {
		argmax := argmax(lastLogits)
		completion = append(completion, int32(argmax))

		var err error
		lastLogits, err = mock.Forward([]int32{int32(argmax)}, pos)
		require.NoError(t, err)
		pos++
	}

	assert.Equal(t, "Hello", codec.Decode(completion))
}

func TestMockBackend_StopsAtEOSAfterEchoedContent(t *testing.T) {
	mock := backend.NewMockBackend()
	codec := mock.Codec()

	messages := []chatMessage{{Role: "user", Content: "Hi"}}
	prompt, err := json.Marshal(messages)
	require.NoError(t, err)
	promptTokens := codec.Encode(string(prompt))

	lastLogits, err := mock.Forward(promptTokens, 0)
	require.NoError(t, err)

	var generated []int32
	pos := len(promptTokens)
	for {
		next := int32(argmax(lastLogits))
		generated = append(generated, next)
		if next == mock.EOSID() {
			break
		}

		var err error
		lastLogits, err = mock.Forward([]int32{next}, pos)
		require.NoError(t, err)
		pos++
	}

	require.Len(t, generated, 3) // "Hi" (2 bytes) plus the terminating EOS id.
	assert.Equal(t, "Hi", codec.Decode(generated))
}

func TestMockBackend_ResetsOnNewGeneration(t *testing.T) {
	mock := backend.NewMockBackend()
	codec := mock.Codec()

	first, err := json.Marshal([]chatMessage{{Role: "user", Content: "Hi"}})
	require.NoError(t, err)
	_, err = mock.Forward(codec.Encode(string(first)), 0)
	require.NoError(t, err)

	second, err := json.Marshal([]chatMessage{{Role: "user", Content: "Bye"}})
	require.NoError(t, err)

	lastLogits, err := mock.Forward(codec.Encode(string(second)), 0)
	require.NoError(t, err)

	assert.Equal(t, byte('B'), byte(argmax(lastLogits)))
}

func TestNew_DispatchesMockByName(t *testing.T) {
	b, err := backend.New(backend.Source{Name: "mock"})
	require.NoError(t, err)
	require.IsType(t, &backend.MockBackend{}, b)
}

func TestNew_UnknownFamilyErrors(t *testing.T) {
	_, err := backend.New(backend.Source{Name: "some-unrecognized-arch", Dir: t.TempDir()})
	assert.Error(t, err)
}

func argmax(logits []float32) int {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return best
}
