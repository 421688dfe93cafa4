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
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/contextbudget"
	"github.com/teradata-labs/loom-agentd/internal/message"
	"github.com/teradata-labs/loom-agentd/internal/segment"
	"github.com/teradata-labs/loom-agentd/internal/thread"
)

// newTestSupervisor wires a Supervisor against a fake CLI script so a turn
// can run end to end without a real LLM binary. body is the shell script's
// content (minus the shebang).
func newTestSupervisor(t *testing.T, body string) *Supervisor {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI scripts assume a POSIX shell")
	}

	scriptDir := t.TempDir()
	scriptPath := filepath.Join(scriptDir, "fake-cli")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"+body), 0o755))

	mgr := thread.NewManager(t.TempDir(), zap.NewNop())
	assembler := contextbudget.New(nil, nil)

	return New(Config{
		Threads:   mgr,
		Assembler: assembler,
		CLI: CLIConfig{
			BinaryName:         "fake-cli",
			ExtraCandidateDirs: []string{scriptDir},
		},
		Logger: zap.NewNop(),
	})
}

func drainN(t *testing.T, ch <-chan TurnEvent, n int) []TurnEvent {
	t.Helper()
	var out []TurnEvent
	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}
	return out
}

func TestSendMessageSingleTextTurn(t *testing.T) {
	const childOutput = `cat <<'EOF'
{"type":"assistant","message":{"content":[{"type":"text","text":"Hello."}]}}
{"type":"result","duration_ms":120,"usage":{"input_tokens":5,"output_tokens":1}}
EOF
`
	s := newTestSupervisor(t, childOutput)

	ch, unsub := s.Subscribe("t1")
	defer unsub()

	err := s.SendMessage(context.Background(), "t1", "hi", nil)
	require.NoError(t, err)

	events := drainN(t, ch, 5)

	userAppended, ok := events[0].(UserMessageAppendedEvent)
	require.True(t, ok, "first event must be user-message-appended")
	assert.Equal(t, message.User, userAppended.Message.Role)
	assert.Equal(t, "hi", userAppended.Message.Content)

	chunk, ok := events[1].(StreamChunkEvent)
	require.True(t, ok, "second event must be stream-chunk")
	assert.Equal(t, "Hello.", chunk.Text)

	seg1, ok := events[2].(StreamSegmentEvent)
	require.True(t, ok)
	assert.Equal(t, segment.Text{Content: "Hello."}, seg1.Segment)

	seg2, ok := events[3].(StreamSegmentEvent)
	require.True(t, ok)
	assert.Equal(t, segment.Result{DurationMS: 120, InputTokens: 5, OutputTokens: 1}, seg2.Segment)

	end, ok := events[4].(StreamEndEvent)
	require.True(t, ok, "final event must be stream-end")
	require.NotNil(t, end.Message)
	assert.Equal(t, "Hello.", end.Message.Content)
	assert.Equal(t, "Hello.", end.FallbackText)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, message.User, hist[0].Role)
	assert.Equal(t, message.Assistant, hist[1].Role)
	assert.Equal(t, "Hello.", hist[1].Content)
}

func TestSendMessageZeroAttachmentsNeverOpensStdin(t *testing.T) {
	// With no image attachments, no stdin pipe is opened at all: the child
	// reads the null device and cat sees EOF immediately. The pipe-level
	// assertion lives in TestSpawnWithoutStdinNeverOpensAPipe; this covers
	// the same path end to end through SendMessage.
	s := newTestSupervisor(t, "cat > /dev/null; exit 0\n")

	err := s.SendMessage(context.Background(), "t1", "hi", nil)
	require.NoError(t, err)
}

func TestSendMessageENOENTSurfacesFatalStartupError(t *testing.T) {
	mgr := thread.NewManager(t.TempDir(), zap.NewNop())
	s := New(Config{
		Threads:   mgr,
		Assembler: contextbudget.New(nil, nil),
		CLI: CLIConfig{
			BinaryName:         "this-binary-does-not-exist-anywhere",
			ExtraCandidateDirs: []string{t.TempDir()},
		},
		Logger: zap.NewNop(),
	})

	ch, unsub := s.Subscribe("t1")
	defer unsub()

	err := s.SendMessage(context.Background(), "t1", "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLI not found")

	events := drainN(t, ch, 3)
	_, ok := events[0].(UserMessageAppendedEvent)
	assert.True(t, ok)

	streamErr, ok := events[1].(StreamErrorEvent)
	require.True(t, ok)
	assert.Contains(t, streamErr.Err, "CLI not found")

	end, ok := events[2].(StreamEndEvent)
	require.True(t, ok)
	assert.Nil(t, end.Message)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1, "only the user message should be recorded when spawn fails")
}

func TestIsStreamingReflectsActiveProcessMap(t *testing.T) {
	s := newTestSupervisor(t, "sleep 5\n")

	assert.False(t, s.IsStreaming("t1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.SendMessage(context.Background(), "t1", "hi", nil)
	}()

	require.Eventually(t, func() bool {
		return s.IsStreaming("t1")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.KillProcess("t1"))
	<-done

	assert.False(t, s.IsStreaming("t1"))
}

func TestKillMidStreamEmitsFallbackOnlyStreamEnd(t *testing.T) {
	const body = `printf '%s\n' '{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}'
sleep 5
`
	s := newTestSupervisor(t, body)

	ch, unsub := s.Subscribe("t1")
	defer unsub()

	done := make(chan error, 1)
	go func() { done <- s.SendMessage(context.Background(), "t1", "hi", nil) }()

	// Wait for user-message-appended, stream-chunk, stream-segment so the
	// partial text is known to have been accumulated before the kill.
	events := drainN(t, ch, 3)
	chunk, ok := events[1].(StreamChunkEvent)
	require.True(t, ok)
	assert.Equal(t, "partial", chunk.Text)

	require.NoError(t, s.KillProcess("t1"))
	require.NoError(t, <-done)

	end, ok := drainN(t, ch, 1)[0].(StreamEndEvent)
	require.True(t, ok, "a killed turn still emits exactly one stream-end")
	assert.Nil(t, end.Message, "a pre-empted turn must not append its partial text")
	assert.Equal(t, "partial", end.FallbackText)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 1, "history holds only the user message after pre-emption")
}

func TestKillProcessIsSafeWithNoActiveProcess(t *testing.T) {
	s := newTestSupervisor(t, "exit 0\n")
	assert.NoError(t, s.KillProcess("never-started"))
}

func TestRetrievalFailureDoesNotFailTheTurn(t *testing.T) {
	s := newTestSupervisor(t, "exit 0\n")
	s.retriever = failingRetriever{}

	err := s.SendMessage(context.Background(), "t1", "hi", nil)
	assert.NoError(t, err)
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, string, int) (string, error) {
	return "", errors.New("retrieval backend unreachable")
}
