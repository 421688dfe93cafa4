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

package agentdconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ControlAPIConfig configures the local control API's bind address.
type ControlAPIConfig struct {
	Port int    `yaml:"port"`
	Bind string `yaml:"bind"`
}

// CLIConfig configures the external agent CLI subprocess lookup.
type CLIConfig struct {
	BinaryName         string   `yaml:"binary_name"`
	ExtraCandidateDirs []string `yaml:"extra_candidate_dirs"`
}

// RouterConfig configures agent-to-agent interjection.
type RouterConfig struct {
	KillGracePeriodMS int `yaml:"kill_grace_period_ms"`
}

// ToolServersConfig names the absolute paths the generated per-thread tool
// config points the CLI subprocess at. Both are opaque to this daemon:
// empty values are written through as-is rather than erroring.
type ToolServersConfig struct {
	HelperToolServerPath string `yaml:"helper_tool_server_path"`
	AgentToolServerPath  string `yaml:"agent_tool_server_path"`
}

// Config is the daemon's full YAML-overridable configuration. Every field
// has a safe zero-value default applied by Default(); a config file on disk
// only needs to set the fields it wants to change.
type Config struct {
	DataDir     string            `yaml:"data_dir"`
	ControlAPI  ControlAPIConfig  `yaml:"control_api"`
	CLI         CLIConfig         `yaml:"cli"`
	Router      RouterConfig      `yaml:"router"`
	ToolServers ToolServersConfig `yaml:"tool_servers"`
}

// Default returns the built-in configuration: data dir from DataDir(),
// control API on loopback:9223, router grace period 100ms, and a CLI
// binary name of "agent-cli" with no extra candidate directories.
func Default() *Config {
	return &Config{
		DataDir: DataDir(),
		ControlAPI: ControlAPIConfig{
			Port: 9223,
			Bind: "127.0.0.1",
		},
		CLI: CLIConfig{
			BinaryName: "agent-cli",
		},
		Router: RouterConfig{
			KillGracePeriodMS: 100,
		},
	}
}

// Load returns Default() overlaid with path's YAML contents, if path is
// non-empty and the file exists. A missing file is not an error: the
// daemon runs on defaults alone. A present-but-malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
