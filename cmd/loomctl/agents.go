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

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var createIfMissing bool

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Aliases: []string{"list", "ls"},
	Short:   "List agents known to a running loom-agentd",
	Run:     runAgentsCommand,
}

func init() {
	agentsCmd.AddCommand(agentsCreateCmd)
	agentsCreateCmd.Flags().BoolVar(&createIfMissing, "if-missing", false, "succeed silently if the agent already exists")
}

var agentsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new agent thread",
	Args:  cobra.ExactArgs(1),
	Run:   runAgentsCreateCommand,
}

func runAgentsCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newAPIClient(serverAddr)
	resp, err := c.listAgents(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing agents: %v\n", err)
		os.Exit(1)
	}
	if resp.Error != "" {
		fmt.Fprintf(os.Stderr, "Error listing agents: %s\n", resp.Error)
		os.Exit(1)
	}

	if len(resp.Agents) == 0 {
		fmt.Println("No agents yet. Create one with: loomctl agents create <name>")
		return
	}

	fmt.Printf("Agents (%d):\n\n", len(resp.Agents))
	for _, a := range resp.Agents {
		fmt.Printf("  %-24s %s\n", a.Name, a.Status)
	}
}

func runAgentsCreateCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newAPIClient(serverAddr)
	resp, err := c.createAgent(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating agent: %v\n", err)
		os.Exit(1)
	}
	if resp.Error != "" {
		fmt.Fprintf(os.Stderr, "Error creating agent: %s\n", resp.Error)
		os.Exit(1)
	}
	if !resp.Created {
		if createIfMissing {
			return
		}
		fmt.Printf("%s already exists (%s)\n", resp.ThreadName, resp.Reason)
		return
	}
	fmt.Printf("Created agent %s\n", resp.ThreadName)
}
