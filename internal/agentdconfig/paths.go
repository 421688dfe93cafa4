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

// Package agentdconfig locates the daemon's data directory and loads its
// optional YAML config overlay. Path resolution is env-var-first with tilde
// expansion.
package agentdconfig

import (
	"os"
	"path/filepath"
	"strings"
)

// dataDirEnvVar overrides the default data directory.
const dataDirEnvVar = "LOOM_AGENTD_DATA_DIR"

const defaultDataDirName = ".loom-agentd"

// DataDir returns the daemon's data directory: LOOM_AGENTD_DATA_DIR if set,
// else ~/.loom-agentd. "~/" is expanded and the result is absolute, except
// when the home directory or the path's absolute form cannot be determined,
// in which case the unresolved path is returned.
func DataDir() string {
	if dir := os.Getenv(dataDirEnvVar); dir != "" {
		return expandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}
	return filepath.Join(home, defaultDataDirName)
}

// SubDir returns a subdirectory within DataDir, e.g. SubDir("threads").
func SubDir(name string) string {
	return filepath.Join(DataDir(), name)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
