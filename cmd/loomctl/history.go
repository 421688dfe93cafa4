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

var historyCount int

var historyCmd = &cobra.Command{
	Use:   "history <agent>",
	Short: "Print an agent's conversation history",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryCommand,
}

func init() {
	historyCmd.Flags().IntVar(&historyCount, "count", 0, "number of most recent messages (0 = all)")
}

func runHistoryCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newAPIClient(serverAddr)
	resp, err := c.history(ctx, args[0], historyCount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching history: %v\n", err)
		os.Exit(1)
	}
	if resp.Error != "" {
		fmt.Fprintf(os.Stderr, "Error fetching history: %s\n", resp.Error)
		os.Exit(1)
	}

	for _, m := range resp.Messages {
		fmt.Printf("[%s] %s: %s\n", time.UnixMilli(m.TimestampMS).Format(time.RFC3339), m.Role, m.Content)
	}
}
