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

// Package segment defines the StreamSegment closed sum type produced by the
// line-JSON decoder. Segment is a marker interface implemented by exactly
// the six variants below; callers switch on type, never a runtime tag.
package segment

// Segment is implemented by every StreamSegment variant.
type Segment interface {
	isSegment()
}

// Text is a chunk of assistant-visible prose.
type Text struct {
	Content string
}

func (Text) isSegment() {}

// Thinking is an assistant internal reflection block.
type Thinking struct {
	Content string
}

func (Thinking) isSegment() {}

// ToolUse is the LLM invoking a named tool with structured input.
type ToolUse struct {
	Tool  string
	Input map[string]any
}

func (ToolUse) isSegment() {}

// ToolResult is the observed output of a tool invocation.
type ToolResult struct {
	Content string
	IsError bool
}

func (ToolResult) isSegment() {}

// System is a subprocess system/status message.
type System struct {
	Content string
}

func (System) isSegment() {}

// Result is the terminal accounting record for a turn.
type Result struct {
	DurationMS   int64
	InputTokens  int
	OutputTokens int
}

func (Result) isSegment() {}
