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
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newSessionID() string {
	return uuid.NewString()
}

func pathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Manager owns the single thread_name → *Thread map for a host process.
// Exactly one Thread exists per name; Manager hands out the same instance
// on every GetOrCreate call for a given name.
type Manager struct {
	mu      sync.Mutex
	root    string // threads root directory, e.g. ~/.loom-agentd/threads
	threads map[string]*Thread
	logger  *zap.Logger
}

// NewManager returns a Manager rooted at root. root is created lazily on
// first thread access.
func NewManager(root string, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		root:    root,
		threads: make(map[string]*Thread),
		logger:  logger,
	}
}

// GetOrCreate returns the Thread for name, lazily creating its on-disk
// stores on first reference. Safe for concurrent use.
func (m *Manager) GetOrCreate(name string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.threads[name]; ok {
		return t, nil
	}

	home := filepath.Join(m.root, name)
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("create thread home %q: %w", home, err)
	}

	history, err := openSQLiteHistoryLog(filepath.Join(m.root, name+".jsonl"), filepath.Join(m.root, name+".sqlite"))
	if err != nil {
		return nil, fmt.Errorf("open history log for %q: %w", name, err)
	}

	content, err := newFSContentStore(filepath.Join(m.root, name+".content"))
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("open content store for %q: %w", name, err)
	}

	sessions, err := newFileSessionStore(filepath.Join(m.root, name+".sessions"))
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("open session store for %q: %w", name, err)
	}

	t := &Thread{
		Name:     name,
		Home:     home,
		History:  history,
		Content:  content,
		sessions: sessions,
		logger:   m.logger,
	}
	m.threads[name] = t
	m.logger.Info("thread opened", zap.String("thread", name), zap.String("home", home))
	return t, nil
}

// Exists reports whether name has ever been referenced this process, or
// has durable on-disk state from a previous run.
func (m *Manager) Exists(name string) bool {
	m.mu.Lock()
	if _, ok := m.threads[name]; ok {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	ok, _ := pathExists(filepath.Join(m.root, name+".jsonl"))
	return ok
}

// Names returns every thread name known to this Manager instance.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.threads))
	for name := range m.threads {
		names = append(names, name)
	}
	return names
}

// Shutdown tears down every open thread, releasing in-memory caches.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, t := range m.threads {
		if err := t.Teardown(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("teardown thread %q: %w", name, err)
		}
	}
	m.threads = make(map[string]*Thread)
	return firstErr
}
