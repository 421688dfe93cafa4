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

// loomctl is a thin CLI client for a running loom-agentd's local control
// API, useful for scripting and debugging without the Electron front end:
// persistent flags for the server address, one subcommand per server call.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:     "loomctl",
	Short:   "loomctl - command line client for a running loom-agentd",
	Long:    `loomctl talks to a running loom-agentd's local control API: list agents, send messages, and fetch thread history.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "addr", "a", "http://127.0.0.1:9223", "loom-agentd control API base URL")
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
