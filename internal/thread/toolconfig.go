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

package thread

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ToolConfigOptions carries everything the tool-config file must point a
// freshly spawned subprocess at: the control API base URL it should reach
// back on, and this agent's own name, so the subprocess's tool calls are
// attributable without the host having to guess.
type ToolConfigOptions struct {
	HelperToolServerPath string // absolute path to the LLM helper tool server binary/socket
	AgentToolServerPath  string // absolute path to the agent tool server binary/socket
	ControlAPIBaseURL    string // e.g. http://127.0.0.1:9223
	AgentName            string
}

// toolConfigDocument is the serialized shape written to disk. Field names
// are stable: a freshly spawned subprocess reads this file by path, not by
// talking to the host process, so the shape is the contract.
type toolConfigDocument struct {
	SessionID        string `json:"sessionId"`
	ThreadName       string `json:"threadName"`
	HelperToolServer string `json:"helperToolServer"`
	HistoryLogPath   string `json:"historyLogPath"`
	ContentStorePath string `json:"contentStorePath"`
	SessionStorePath string `json:"sessionStorePath"`
	AgentToolServer  struct {
		Path string            `json:"path"`
		Env  map[string]string `json:"env"`
	} `json:"agentToolServer"`
}

// writeToolConfig generates a new tool-config file for t under the given
// session. The file lives in the thread's home directory (readable
// regardless of the subprocess's own working directory), named uniquely per
// session so concurrent regenerations never collide.
func writeToolConfig(t *Thread, sessionID string, opts ToolConfigOptions) (string, error) {
	doc := toolConfigDocument{
		SessionID:        sessionID,
		ThreadName:       t.Name,
		HelperToolServer: opts.HelperToolServerPath,
		HistoryLogPath:   filepath.Join(t.Home, "..", t.Name+".jsonl"),
		ContentStorePath: filepath.Join(t.Home, "..", t.Name+".content"),
		SessionStorePath: filepath.Join(t.Home, "..", t.Name+".sessions"),
	}
	doc.AgentToolServer.Path = opts.AgentToolServerPath
	doc.AgentToolServer.Env = map[string]string{
		"LOOM_AGENTD_BASE_URL": opts.ControlAPIBaseURL,
		"LOOM_AGENTD_AGENT":    opts.AgentName,
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tool config: %w", err)
	}

	name := fmt.Sprintf("mcp-config-%s-%s.json", t.Name, sessionID)
	path := filepath.Join(t.Home, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write tool config %q: %w", path, err)
	}
	return path, nil
}

// removeToolConfig deletes the tool-config file. Missing is not an error:
// teardown may race a subprocess that already cleaned up, or run twice.
func removeToolConfig(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tool config %q: %w", path, err)
	}
	return nil
}

// toolConfigWatcher notices when a thread's tool-config file is removed out
// from under it (an editor-style external tool, a stray cleanup script, a
// crashed subprocess's own teardown) and clears the thread's cached path so
// the next ToolConfigPath call regenerates it instead of handing out a
// pointer to nothing.
type toolConfigWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// watchToolConfig starts watching path's parent directory for the removal
// of path specifically, invoking onRemoved exactly once when it happens.
func watchToolConfig(path string, logger *zap.Logger, onRemoved func()) (*toolConfigWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create tool config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch tool config dir: %w", err)
	}

	tw := &toolConfigWatcher{watcher: w, done: make(chan struct{})}
	go func() {
		defer close(tw.done)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					logger.Warn("tool config removed unexpectedly", zap.String("path", path))
					onRemoved()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("tool config watcher error", zap.Error(err))
			}
		}
	}()
	return tw, nil
}

func (tw *toolConfigWatcher) Stop() error {
	if tw == nil {
		return nil
	}
	err := tw.watcher.Close()
	<-tw.done
	return err
}
