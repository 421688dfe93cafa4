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
	"fmt"

	"github.com/teradata-labs/loom-agentd/internal/thread"
)

// GitRestorer is a separately opt-in source-control restoration effect.
// Restore receives the thread's home directory and the gitSnapshot
// recorded on the message being reverted to.
type GitRestorer interface {
	Restore(projectDir, gitSnapshot string) error
}

// noGitRestorer is the default: restore_git is always reported as failed,
// since no concrete VCS integration is in scope for this module. History
// truncation still proceeds regardless.
type noGitRestorer struct{}

func (noGitRestorer) Restore(string, string) error {
	return fmt.Errorf("git restoration is not configured for this host")
}

// RevertResult is the structural result of a revert call.
type RevertResult struct {
	Success      bool
	RemovedCount int
	Error        string `json:",omitempty"`
}

// Revert truncates the thread's history from messageID onward, optionally
// attempting git restoration.
// Failure to resolve the thread or to truncate marks Success false; a failed
// git restoration is reported in Error but does not block truncation.
func (s *Supervisor) Revert(threadName, messageID string, restoreGit bool) RevertResult {
	th, err := s.threads.GetOrCreate(threadName)
	if err != nil {
		return RevertResult{Success: false, Error: err.Error()}
	}

	// Snapshot must be read before truncation removes messageID from history.
	var snapshot string
	if restoreGit {
		snapshot = gitSnapshotFor(th, messageID)
	}

	removed, err := th.History.TruncateFrom(messageID)
	if err != nil {
		return RevertResult{Success: false, Error: err.Error()}
	}

	result := RevertResult{Success: true, RemovedCount: removed}
	if restoreGit {
		if gitErr := s.gitRestorer.Restore(th.Home, snapshot); gitErr != nil {
			result.Error = gitErr.Error()
		}
	}
	return result
}

// gitSnapshotFor looks up the gitSnapshot metadata recorded on messageID,
// best-effort: a miss just means Restore is called with an empty snapshot
// (and will itself report failure).
func gitSnapshotFor(th *thread.Thread, messageID string) string {
	all, err := th.History.GetAll()
	if err != nil {
		return ""
	}
	for _, msg := range all {
		if msg.ID == messageID {
			return msg.GitSnapshot()
		}
	}
	return ""
}
