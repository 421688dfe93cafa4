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

// Package message defines the conversational Message and Attachment types
// shared by the thread store, the supervisor, and the control API.
package message

// Role identifies who produced a Message.
type Role string

const (
	User         Role = "user"
	Assistant    Role = "assistant"
	SystemMarker Role = "system-marker"
)

// AttachmentKind distinguishes the two attachment shapes a turn can carry.
type AttachmentKind string

const (
	Image AttachmentKind = "image"
	File  AttachmentKind = "file"
)

// Attachment references a piece of content alongside a Message. Path may be
// stored relative to the owning thread's home directory; callers that need
// an absolute path resolve it against the thread home first.
type Attachment struct {
	Name     string
	Path     string
	Kind     AttachmentKind
	MimeType string
}

// Message is an immutable entry in a thread's history log. Once appended,
// none of its fields change; a revert removes whole messages, it never
// edits one in place.
type Message struct {
	ID          string
	Role        Role
	Content     string
	TimestampMS int64
	TokenCount  *int
	Metadata    map[string]string
	Attachments []Attachment
}

// SessionID reads the sessionId metadata key, the empty string if absent.
func (m Message) SessionID() string {
	return m.Metadata["sessionId"]
}

// GitSnapshot reads the gitSnapshot metadata key, the empty string if absent.
func (m Message) GitSnapshot() string {
	return m.Metadata["gitSnapshot"]
}
