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

package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallbackSink_ForwardsEmit(t *testing.T) {
	var gotName string
	var gotPayload []byte

	sink := NewCallbackSink(func(eventName string, payload []byte) {
		gotName = eventName
		gotPayload = payload
	})

	err := sink.Emit("chunk", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "chunk", gotName)
	assert.Equal(t, []byte("hello"), gotPayload)
}

func TestCallbackSink_NilCallbackIsNoOp(t *testing.T) {
	sink := NewCallbackSink(nil)
	require.NoError(t, sink.Emit("end", []byte("x")))
}
