// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package supervisor

import (
	"github.com/teradata-labs/loom-agentd/internal/message"
	"github.com/teradata-labs/loom-agentd/internal/segment"
)

// TurnEvent is the closed set of events a subscriber observes for one
// thread, following the same private-marker-method shape as segment.Segment.
type TurnEvent interface{ isTurnEvent() }

// UserMessageAppendedEvent fires once the user's Message has been durably
// appended to history, before any stream-* event for the same turn.
type UserMessageAppendedEvent struct {
	Message message.Message
}

func (UserMessageAppendedEvent) isTurnEvent() {}

// StreamChunkEvent carries a piece of assistant-visible text, already joined
// to the accumulator with the paragraph separator applied.
type StreamChunkEvent struct {
	Text string
}

func (StreamChunkEvent) isTurnEvent() {}

// StreamSegmentEvent carries every produced Segment, Text included,
// regardless of whether it also produced a StreamChunkEvent.
type StreamSegmentEvent struct {
	Segment segment.Segment
}

func (StreamSegmentEvent) isTurnEvent() {}

// StreamErrorEvent fires on a fatal subprocess condition (ENOENT at spawn).
type StreamErrorEvent struct {
	Err string
}

func (StreamErrorEvent) isTurnEvent() {}

// StreamEndEvent is delivered exactly once per send_message call, after
// every per-line task has resolved.
type StreamEndEvent struct {
	Message      *message.Message
	FallbackText string
	Segments     []segment.Segment
}

func (StreamEndEvent) isTurnEvent() {}
