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

// Package streamdecoder turns the subprocess's line-JSON stdout into a
// sequence of segment.Segment values. Framing tolerates \r\n and imposes no
// fixed line-length ceiling. The decoder never blocks on I/O itself:
// callers feed it bytes as they arrive.
package streamdecoder

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teradata-labs/loom-agentd/internal/segment"
)

// Decoder is stateless across lines; it only buffers an incomplete trailing
// fragment between Feed calls.
type Decoder struct {
	pending []byte
}

// New returns a ready-to-use Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the buffered fragment and decodes every complete
// \n-terminated line it now contains. The trailing incomplete fragment (if
// any) is retained for the next Feed or Flush call.
func (d *Decoder) Feed(chunk []byte) []segment.Segment {
	var out []segment.Segment
	for _, line := range d.FeedLines(chunk) {
		out = append(out, DecodeLine(line)...)
	}
	return out
}

// Flush decodes any remaining buffered bytes as one final line, as required
// at end-of-stream, then clears the buffer.
func (d *Decoder) Flush() []segment.Segment {
	line, ok := d.FlushLine()
	if !ok {
		return nil
	}
	return DecodeLine(line)
}

// FeedLines appends chunk to the buffered fragment and returns every
// complete raw \n-terminated line now available, without decoding them.
// Supervisors that need to run a post-processor on each raw line before
// decoding call this instead of Feed, then pass each returned line through
// DecodeLine themselves.
func (d *Decoder) FeedLines(chunk []byte) [][]byte {
	d.pending = append(d.pending, chunk...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, d.pending[:idx])
		d.pending = d.pending[idx+1:]
		lines = append(lines, line)
	}
	return lines
}

// FlushLine returns the buffered trailing fragment (if any) as the final
// line at end-of-stream, clearing the buffer. ok is false if nothing was
// buffered.
func (d *Decoder) FlushLine() (line []byte, ok bool) {
	if len(d.pending) == 0 {
		return nil, false
	}
	line = d.pending
	d.pending = nil
	return line, true
}

// DecodeLine is the exported form of decodeLine, for callers that split and
// post-process lines themselves via FeedLines/FlushLine.
func DecodeLine(rawLine []byte) []segment.Segment {
	return decodeLine(rawLine)
}

type wireLine struct {
	Type       string          `json:"type"`
	Message    json.RawMessage `json:"message"`
	Content    json.RawMessage `json:"content"`
	IsError    *bool           `json:"is_error"`
	Output     json.RawMessage `json:"output"`
	Subtype    string          `json:"subtype"`
	DurationMS int64           `json:"duration_ms"`
	Usage      *wireUsage      `json:"usage"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

type wireBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	Input    map[string]any  `json:"input"`
	Content  json.RawMessage `json:"content"`
	IsError  *bool           `json:"is_error"`
}

// decodeLine maps one raw \n-terminated line to zero or more Segments.
// Malformed JSON and JSON matching no known shape both yield zero Segments;
// the decoder never fails the stream.
func decodeLine(rawLine []byte) []segment.Segment {
	trimmed := bytes.TrimRight(rawLine, "\r")
	if len(bytes.TrimSpace(trimmed)) == 0 {
		return nil
	}

	var wl wireLine
	if err := json.Unmarshal(trimmed, &wl); err != nil {
		return nil
	}

	switch wl.Type {
	case "assistant":
		return decodeMessageBlocks(wl.Message, true)
	case "user":
		return decodeMessageBlocks(wl.Message, false)
	case "tool_result":
		return []segment.Segment{segment.ToolResult{
			Content: toolResultText(wl.Content),
			IsError: boolValue(wl.IsError),
		}}
	case "system":
		return []segment.Segment{decodeSystem(wl, trimmed)}
	case "result":
		r := segment.Result{DurationMS: wl.DurationMS}
		if wl.Usage != nil {
			r.InputTokens = wl.Usage.InputTokens
			r.OutputTokens = wl.Usage.OutputTokens
		}
		return []segment.Segment{r}
	case "":
		if wl.Output != nil {
			return []segment.Segment{segment.ToolResult{
				Content: stringifyValue(wl.Output),
				IsError: false,
			}}
		}
		return nil
	default:
		return nil
	}
}

// decodeMessageBlocks expands an assistant/user message's content blocks.
// assistantLine selects the assistant mapping (all four block kinds) versus
// the user mapping (tool_result blocks only; user text echoes are
// suppressed per the wire protocol).
func decodeMessageBlocks(raw json.RawMessage, assistantLine bool) []segment.Segment {
	if len(raw) == 0 {
		return nil
	}
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}

	var out []segment.Segment
	for _, b := range msg.Content {
		switch b.Type {
		case "text":
			if assistantLine {
				out = append(out, segment.Text{Content: b.Text})
			}
		case "thinking":
			if assistantLine {
				out = append(out, segment.Thinking{Content: b.Thinking})
			}
		case "tool_use":
			if assistantLine {
				out = append(out, segment.ToolUse{Tool: b.Name, Input: b.Input})
			}
		case "tool_result":
			out = append(out, segment.ToolResult{
				Content: toolResultText(b.Content),
				IsError: boolValue(b.IsError),
			})
		}
	}
	return out
}

func decodeSystem(wl wireLine, rawLine []byte) segment.System {
	var msg string
	if len(wl.Message) > 0 {
		_ = json.Unmarshal(wl.Message, &msg)
	}
	if wl.Subtype == "" && msg == "" {
		return segment.System{Content: string(rawLine)}
	}
	var b strings.Builder
	b.WriteString(wl.Subtype)
	b.WriteString(": ")
	b.WriteString(msg)
	return segment.System{Content: b.String()}
}

// toolResultText implements "content that is not already a string is
// serialized to JSON before emission".
func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return stringifyValue(raw)
}

func stringifyValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(b)
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
