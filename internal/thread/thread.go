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

// Package thread owns the durable state for one named conversation: its
// history log, content store, session id, and tool-config file. Exactly one
// Thread exists per name per host process, handed out by Manager.
package thread

import (
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// Stats summarizes a history log's contents.
type Stats struct {
	Count       int
	TotalTokens int
}

// HistoryLog is the opaque append-only message log a thread's state backs
// onto. Implementations must be safe for concurrent use; the supervisor
// treats it as atomically consistent at the granularity of a single Append.
type HistoryLog interface {
	Append(msg message.Message) (message.Message, error)
	GetRecent(n int) ([]message.Message, error)
	GetAll() ([]message.Message, error)
	GetStats() (Stats, error)
	Search(query string) ([]message.Message, error)
	// TruncateFrom removes messageID and every message appended after it,
	// backing the revert operation. Returns the number of messages
	// removed; messageID not found removes nothing.
	TruncateFrom(messageID string) (removedCount int, err error)
	Close() error
}

// ContentStore is the opaque key-addressed blob store for externalized
// content.
type ContentStore interface {
	Put(blob []byte) (id string, err error)
	Get(id string) ([]byte, error)
	Search(query string) ([]string, error)
}

// SessionStore persists the one session id established per thread.
type SessionStore interface {
	Get(threadName string) (id string, ok bool, err error)
	Set(threadName, sessionID string) error
}

// Thread is the durable state of one named conversation.
type Thread struct {
	Name    string
	Home    string // absolute path to this thread's on-disk directory
	History HistoryLog
	Content ContentStore

	sessions SessionStore
	logger   *zap.Logger

	mu             sync.Mutex
	sessionID      string
	toolConfigPath string
	watcher        *toolConfigWatcher
}

// SessionID returns the thread's established session id, creating one on
// first use. A session id is established once per thread and then reused
// across subprocess invocations.
func (t *Thread) SessionID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionID != "" {
		return t.sessionID, nil
	}
	if id, ok, err := t.sessions.Get(t.Name); err != nil {
		return "", err
	} else if ok {
		t.sessionID = id
		return id, nil
	}
	id := newSessionID()
	if err := t.sessions.Set(t.Name, id); err != nil {
		return "", err
	}
	t.sessionID = id
	return id, nil
}

// ResolveAttachmentPath returns att.Path as an absolute path, resolving it
// relative to the thread's home directory if it isn't already absolute.
func (t *Thread) ResolveAttachmentPath(att message.Attachment) string {
	if filepath.IsAbs(att.Path) {
		return att.Path
	}
	return filepath.Join(t.Home, att.Path)
}

// ToolConfigPath returns the path to this thread's tool-config file,
// generating it (and the file itself) on first call for the current
// session.
func (t *Thread) ToolConfigPath(opts ToolConfigOptions) (string, error) {
	t.mu.Lock()
	if t.toolConfigPath != "" {
		if ok, _ := pathExists(t.toolConfigPath); ok {
			existing := t.toolConfigPath
			t.mu.Unlock()
			return existing, nil
		}
	}
	stale := t.watcher
	t.watcher = nil
	t.mu.Unlock()

	// Stop() blocks until the watcher goroutine exits, and that goroutine
	// may itself be trying to acquire t.mu inside onRemoved; never call
	// Stop() while holding the lock.
	if stale != nil {
		stale.Stop()
	}

	sessionID, err := t.SessionID()
	if err != nil {
		return "", fmt.Errorf("tool config: resolve session id: %w", err)
	}
	path, err := writeToolConfig(t, sessionID, opts)
	if err != nil {
		return "", fmt.Errorf("tool config: write: %w", err)
	}

	watcher, werr := watchToolConfig(path, t.logger, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.toolConfigPath == path {
			t.toolConfigPath = ""
		}
	})
	if werr != nil && t.logger != nil {
		t.logger.Warn("tool config watcher unavailable", zap.Error(werr))
	}

	t.mu.Lock()
	t.toolConfigPath = path
	t.watcher = watcher
	t.mu.Unlock()

	return path, nil
}

// Teardown removes the thread's tool-config file and releases in-memory
// caches. On-disk history/content/session state is left untouched: a
// Thread is destroyed only by explicit host shutdown, which releases
// in-memory caches, not on-disk state.
func (t *Thread) Teardown() error {
	t.mu.Lock()
	watcher := t.watcher
	t.watcher = nil
	configPath := t.toolConfigPath
	t.toolConfigPath = ""
	t.mu.Unlock()

	// As in ToolConfigPath, Stop() must never be called while t.mu is held.
	if watcher != nil {
		watcher.Stop()
	}

	var err error
	if configPath != "" {
		err = removeToolConfig(configPath)
	}

	if cerr := t.History.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
