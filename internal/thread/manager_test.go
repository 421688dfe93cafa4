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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerGetOrCreateReturnsSameInstance(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	t1, err := m.GetOrCreate("alpha")
	require.NoError(t, err)
	t2, err := m.GetOrCreate("alpha")
	require.NoError(t, err)
	assert.Same(t, t1, t2)
}

func TestManagerNamesReflectsOpenThreads(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)
	_, err = m.GetOrCreate("beta")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"alpha", "beta"}, m.Names())
}

func TestManagerExistsChecksDurableState(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, nil)
	assert.False(t, m.Exists("alpha"))

	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)
	assert.True(t, m.Exists("alpha"))

	// A fresh Manager over the same root should still see durable state.
	m2 := NewManager(root, nil)
	assert.True(t, m2.Exists("alpha"))
}

func TestManagerShutdownClearsThreads(t *testing.T) {
	m := NewManager(t.TempDir(), nil)
	_, err := m.GetOrCreate("alpha")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	assert.Empty(t, m.Names())
}
