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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrCLINotFound is returned when none of the candidate CLI locations nor
// the process search path resolve a runnable binary.
var ErrCLINotFound = errors.New("agent CLI not found")

// CLIConfig names the external LLM CLI binary and how to find it.
type CLIConfig struct {
	// BinaryName is the executable looked up on the process search path as
	// a last resort, and appended to every candidate directory below.
	BinaryName string
	// ExtraCandidateDirs are searched, in order, before falling back to
	// BinaryName's PATH lookup. Typically includes common per-user install
	// locations (e.g. "~/.local/bin").
	ExtraCandidateDirs []string
}

func (c CLIConfig) binaryName() string {
	if c.BinaryName == "" {
		return "agent-cli"
	}
	return c.BinaryName
}

// resolveProgramPath walks a fixed candidate list: per-user install
// locations under home, then a few system paths, then the process search
// path.
func resolveProgramPath(cfg CLIConfig) (string, error) {
	home, _ := os.UserHomeDir()
	bin := cfg.binaryName()

	var candidates []string
	for _, dir := range cfg.ExtraCandidateDirs {
		candidates = append(candidates, filepath.Join(dir, bin))
	}
	if home != "" {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", bin),
			filepath.Join(home, "."+bin, "bin", bin),
		)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", bin),
		filepath.Join("/usr/bin", bin),
	)

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	if path, err := exec.LookPath(bin); err == nil {
		return path, nil
	}
	return "", ErrCLINotFound
}

// Flags for the subprocess command line. Names are fixed by this module,
// not configurable, since they describe this module's own wire contract
// with the CLI it spawns.
const (
	flagPrint            = "--print"
	flagVerbose          = "--verbose"
	flagOutputFormat     = "--output-format"
	flagInputFormat      = "--input-format"
	streamJSON           = "stream-json"
	flagPermissionMode   = "--permission-mode"
	bypassPermissions    = "bypassPermissions"
	flagToolConfig       = "--mcp-config"
	flagAppendSysPrompt  = "--append-system-prompt"
)

// buildArgs assembles the subprocess argument list. hasImages selects
// line-JSON *input* mode (images are written to stdin) vs. a plain
// positional user-text argument.
func buildArgs(toolConfigPath, systemPrompt, userText string, hasImages bool) []string {
	args := []string{
		flagPrint,
		flagVerbose,
		flagOutputFormat, streamJSON,
		flagPermissionMode, bypassPermissions,
		flagToolConfig, toolConfigPath,
		flagAppendSysPrompt, systemPrompt,
	}
	if hasImages {
		args = append(args, flagInputFormat, streamJSON)
	} else {
		args = append(args, userText)
	}
	return args
}

// llmVendorEnvPrefix is stripped from the child's environment, alongside
// the legacy CLAUDECODE variable, so the child never inherits the host's
// own vendor credentials or persona.
const llmVendorEnvPrefix = "ANTHROPIC_"

// legacyVendorEnvVar is dropped unconditionally regardless of prefix match.
const legacyVendorEnvVar = "CLAUDECODE"

// filteredEnviron returns os.Environ() with every variable whose key begins
// with llmVendorEnvPrefix, or equals legacyVendorEnvVar, removed.
func filteredEnviron() []string {
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, llmVendorEnvPrefix) || key == legacyVendorEnvVar {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func fatalStartupError(binaryName string, err error) error {
	if errors.Is(err, ErrCLINotFound) {
		return fmt.Errorf("%s CLI not found. Please install it first.", binaryName)
	}
	return err
}
