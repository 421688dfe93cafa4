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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/contextbudget"
	"github.com/teradata-labs/loom-agentd/internal/message"
	"github.com/teradata-labs/loom-agentd/internal/thread"
)

func newRevertTestSupervisor(t *testing.T, restorer GitRestorer) *Supervisor {
	t.Helper()
	mgr := thread.NewManager(t.TempDir(), zap.NewNop())
	return New(Config{
		Threads:     mgr,
		Assembler:   contextbudget.New(nil, nil),
		GitRestorer: restorer,
		Logger:      zap.NewNop(),
	})
}

func TestRevertRemovesTargetAndLaterMessages(t *testing.T) {
	s := newRevertTestSupervisor(t, nil)
	th, err := s.threads.GetOrCreate("t1")
	require.NoError(t, err)

	first, err := th.History.Append(message.Message{Role: message.User, Content: "one"})
	require.NoError(t, err)
	_, err = th.History.Append(message.Message{Role: message.Assistant, Content: "two"})
	require.NoError(t, err)

	result := s.Revert("t1", first.ID, false)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RemovedCount)
	assert.Empty(t, result.Error)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRevertWithGitRestorationFailureStillTruncates(t *testing.T) {
	s := newRevertTestSupervisor(t, failingRestorer{})
	th, err := s.threads.GetOrCreate("t1")
	require.NoError(t, err)

	msg, err := th.History.Append(message.Message{
		Role:     message.User,
		Content:  "one",
		Metadata: map[string]string{"gitSnapshot": "abc123"},
	})
	require.NoError(t, err)

	result := s.Revert("t1", msg.ID, true)
	assert.True(t, result.Success, "truncation succeeds even when git restoration fails")
	assert.Equal(t, 1, result.RemovedCount)
	assert.NotEmpty(t, result.Error)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRevertUnknownMessageIDRemovesNothing(t *testing.T) {
	s := newRevertTestSupervisor(t, nil)
	th, err := s.threads.GetOrCreate("t1")
	require.NoError(t, err)
	_, err = th.History.Append(message.Message{Role: message.User, Content: "one"})
	require.NoError(t, err)

	result := s.Revert("t1", "does-not-exist", false)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.RemovedCount)

	hist, err := s.GetHistory("t1", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

type failingRestorer struct{}

func (failingRestorer) Restore(string, string) error {
	return errors.New("no checkout at that snapshot")
}
