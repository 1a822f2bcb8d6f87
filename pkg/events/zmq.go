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
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	zmq "github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"
	"k8s.io/klog/v2"
)

// zmqTopicPrefix namespaces this runtime's events on the PUB socket, in the
// same "tag@field@field" shape the codebase's kv-event topics use.
const zmqTopicPrefix = "llm@"

// ZMQSink publishes events over a ZMQ PUB socket so an out-of-process UI
// can subscribe the same way the codebase's own event consumers subscribe
// to its PUB socket. It is optional production wiring: callers only
// construct one when a bind address is configured.
type ZMQSink struct {
	mu   sync.Mutex
	pub  *zmq.Socket
	seq  uint64
	name string
}

// NewZMQSink binds a PUB socket at bindAddr (e.g. "tcp://*:5601") and
// tags every published topic with runtimeName.
func NewZMQSink(ctx context.Context, bindAddr, runtimeName string) (*ZMQSink, error) {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("create zmq PUB socket: %w", err)
	}

	if err := pub.Bind(bindAddr); err != nil {
		pub.Close()
		return nil, fmt.Errorf("bind zmq PUB socket %s: %w", bindAddr, err)
	}

	klog.FromContext(ctx).Info("bound event sink PUB socket", "endpoint", bindAddr, "runtime", runtimeName)

	return &ZMQSink{pub: pub, name: runtimeName}, nil
}

// Emit implements Sink. It publishes a 3-part multipart message: a topic of
// the form "llm@<eventName>@<runtimeName>", an 8-byte big-endian sequence
// number, and a msgpack tagged-union payload pairing eventName with the
// caller's already-encoded bytes.
func (s *ZMQSink) Emit(eventName string, payload []byte) error {
	wrapped, err := msgpack.Marshal([]any{eventName, payload})
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	topic := zmqTopicPrefix + eventName + "@" + s.name

	s.mu.Lock()
	defer s.mu.Unlock()

	seqBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(seqBytes, s.seq)
	s.seq++

	if _, err := s.pub.SendMessage(topic, seqBytes, wrapped); err != nil {
		return fmt.Errorf("publish event on topic %s: %w", topic, err)
	}
	return nil
}

// Close releases the underlying ZMQ socket.
func (s *ZMQSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub.Close()
}
