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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeExecutable(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
}

func TestResolveProgramPathFindsExtraCandidateDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("candidate resolution assumes a POSIX layout")
	}
	dir := t.TempDir()
	binPath := filepath.Join(dir, "agent-cli")
	writeExecutable(t, binPath)

	got, err := resolveProgramPath(CLIConfig{ExtraCandidateDirs: []string{dir}})
	require.NoError(t, err)
	assert.Equal(t, binPath, got)
}

func TestResolveProgramPathReturnsErrCLINotFoundWhenAbsent(t *testing.T) {
	_, err := resolveProgramPath(CLIConfig{
		BinaryName:         "definitely-not-a-real-binary-xyz",
		ExtraCandidateDirs: []string{t.TempDir()},
	})
	assert.True(t, errors.Is(err, ErrCLINotFound))
}

func TestBuildArgsWithoutImagesAppendsPositionalText(t *testing.T) {
	args := buildArgs("/tmp/tool-config.json", "be helpful", "hello there", false)
	assert.Contains(t, args, flagPrint)
	assert.Contains(t, args, flagVerbose)
	assert.NotContains(t, args, flagInputFormat)
	assert.Equal(t, "hello there", args[len(args)-1])
}

func TestBuildArgsWithImagesAddsInputFormatInsteadOfPositionalText(t *testing.T) {
	args := buildArgs("/tmp/tool-config.json", "be helpful", "hello there", true)
	assert.NotContains(t, args, "hello there")

	for i, a := range args {
		if a == flagInputFormat {
			require.Less(t, i+1, len(args))
			assert.Equal(t, streamJSON, args[i+1])
			return
		}
	}
	t.Fatal("expected --input-format flag when images are present")
}

func TestFilteredEnvironStripsVendorPrefixAndLegacyVar(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "super-secret")
	t.Setenv("CLAUDECODE", "1")
	t.Setenv("UNRELATED_VAR", "kept")

	out := filteredEnviron()
	for _, kv := range out {
		assert.NotContains(t, kv, "ANTHROPIC_API_KEY=")
		assert.NotContains(t, kv, "CLAUDECODE=")
	}
	found := false
	for _, kv := range out {
		if kv == "UNRELATED_VAR=kept" {
			found = true
		}
	}
	assert.True(t, found, "unrelated variables must survive filtering")
}

func TestFatalStartupErrorWrapsCLINotFound(t *testing.T) {
	err := fatalStartupError("agent-cli", ErrCLINotFound)
	assert.Equal(t, `agent-cli CLI not found. Please install it first.`, err.Error())

	other := errors.New("boom")
	assert.Equal(t, other, fatalStartupError("agent-cli", other))
}
