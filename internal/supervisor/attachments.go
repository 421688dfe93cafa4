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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// imageBlock is the base64 content-block shape embedded in the stdin
// payload when images are present.
type imageBlock struct {
	Type   string `json:"type"`
	Source struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"source"`
}

type textBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// stdinUserMessage is the single line written to the child's stdin when
// images are present: {type:"user", message:{role:"user", content:[...]}}.
type stdinUserMessage struct {
	Type    string `json:"type"`
	Message struct {
		Role    string `json:"role"`
		Content []any  `json:"content"`
	} `json:"message"`
}

// buildImageBlocks reads each image attachment and base64-encodes it. A
// read failure does not abort the turn: the resolved path is returned in
// unreadable, which appendFileReferences turns into an
// "[Attached image (unreadable): ...]" line.
func buildImageBlocks(th attachmentResolver, atts []message.Attachment) (blocks []imageBlock, unreadable []string) {
	for _, att := range atts {
		if att.Kind != message.Image {
			continue
		}
		path := th.ResolveAttachmentPath(att)
		data, err := os.ReadFile(path)
		if err != nil {
			unreadable = append(unreadable, path)
			continue
		}
		var b imageBlock
		b.Type = "image"
		b.Source.Type = "base64"
		b.Source.MediaType = att.MimeType
		b.Source.Data = base64.StdEncoding.EncodeToString(data)
		blocks = append(blocks, b)
	}
	return blocks, unreadable
}

// attachmentResolver is the subset of *thread.Thread attachment handling
// needs, kept narrow so attachment helpers don't import the thread package
// directly for testing.
type attachmentResolver interface {
	ResolveAttachmentPath(att message.Attachment) string
}

// appendFileReferences appends a file-reference and unreadable-image
// fallback text block: non-image attachments and unreadable images are
// appended to userText as newline-joined bracket lines.
func appendFileReferences(userText string, th attachmentResolver, atts []message.Attachment, unreadableImages []string) string {
	var lines []string
	for _, path := range unreadableImages {
		lines = append(lines, fmt.Sprintf("[Attached image (unreadable): %s]", path))
	}
	for _, att := range atts {
		if att.Kind == message.Image {
			continue
		}
		lines = append(lines, fmt.Sprintf("[Attached file: %s]", th.ResolveAttachmentPath(att)))
	}
	if len(lines) == 0 {
		return userText
	}
	return userText + "\n" + strings.Join(lines, "\n")
}

// encodeStdinPayload builds the single-line JSON object written to the
// child's stdin when images are present.
func encodeStdinPayload(blocks []imageBlock, text string) ([]byte, error) {
	var msg stdinUserMessage
	msg.Type = "user"
	msg.Message.Role = "user"
	for _, b := range blocks {
		msg.Message.Content = append(msg.Message.Content, b)
	}
	msg.Message.Content = append(msg.Message.Content, textBlock{Type: "text", Text: text})
	return json.Marshal(msg)
}
