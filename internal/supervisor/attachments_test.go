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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

type fakeResolver struct{ dir string }

func (f fakeResolver) ResolveAttachmentPath(att message.Attachment) string {
	if filepath.IsAbs(att.Path) {
		return att.Path
	}
	return filepath.Join(f.dir, att.Path)
}

func TestBuildImageBlocksEncodesReadableImages(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(imgPath, []byte("pngbytes"), 0o644))

	atts := []message.Attachment{
		{Name: "pic.png", Path: "pic.png", Kind: message.Image, MimeType: "image/png"},
	}
	blocks, unreadable := buildImageBlocks(fakeResolver{dir: dir}, atts)

	require.Len(t, blocks, 1)
	assert.Empty(t, unreadable)
	assert.Equal(t, "image", blocks[0].Type)
	assert.Equal(t, "image/png", blocks[0].Source.MediaType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pngbytes")), blocks[0].Source.Data)
}

func TestBuildImageBlocksFallsBackToUnreadableOnReadFailure(t *testing.T) {
	dir := t.TempDir()
	atts := []message.Attachment{
		{Name: "missing.png", Path: "missing.png", Kind: message.Image, MimeType: "image/png"},
	}
	blocks, unreadable := buildImageBlocks(fakeResolver{dir: dir}, atts)

	assert.Empty(t, blocks)
	require.Len(t, unreadable, 1)
	assert.Equal(t, filepath.Join(dir, "missing.png"), unreadable[0])
}

func TestAppendFileReferencesAddsBracketLinesForNonImageAttachments(t *testing.T) {
	dir := t.TempDir()
	atts := []message.Attachment{
		{Name: "notes.txt", Path: "notes.txt", Kind: message.File},
	}
	got := appendFileReferences("hello", fakeResolver{dir: dir}, atts, nil)
	assert.Equal(t, "hello\n[Attached file: "+filepath.Join(dir, "notes.txt")+"]", got)
}

func TestAppendFileReferencesAddsUnreadableImageMarker(t *testing.T) {
	got := appendFileReferences("hello", fakeResolver{dir: "/home/user"}, nil, []string{"/home/user/ghost.png"})
	assert.Equal(t, "hello\n[Attached image (unreadable): /home/user/ghost.png]", got)
}

func TestAppendFileReferencesLeavesTextUntouchedWithNoAttachments(t *testing.T) {
	got := appendFileReferences("hello", fakeResolver{dir: "/home/user"}, nil, nil)
	assert.Equal(t, "hello", got)
}

func TestEncodeStdinPayloadShape(t *testing.T) {
	blocks := []imageBlock{}
	blocks = append(blocks, imageBlock{})
	blocks[0].Type = "image"
	blocks[0].Source.Type = "base64"
	blocks[0].Source.MediaType = "image/png"
	blocks[0].Source.Data = "AAAA"

	raw, err := encodeStdinPayload(blocks, "look at this")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "user", decoded["type"])

	msg := decoded["message"].(map[string]any)
	assert.Equal(t, "user", msg["role"])

	content := msg["content"].([]any)
	require.Len(t, content, 2)
	firstBlock := content[0].(map[string]any)
	assert.Equal(t, "image", firstBlock["type"])
	lastBlock := content[1].(map[string]any)
	assert.Equal(t, "text", lastBlock["type"])
	assert.Equal(t, "look at this", lastBlock["text"])
}
