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
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendSender string

var sendCmd = &cobra.Command{
	Use:   "send <agent> <message...>",
	Short: "Interject a message into an agent's thread",
	Long: `Send delivers message to the named agent by the same kill-then-inject
path an agent's own send_to_agent tool call uses: any in-flight turn on the
target is killed, a short grace period passes, and message is injected as a
fresh user turn.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runSendCommand,
}

func init() {
	sendCmd.Flags().StringVar(&sendSender, "sender", "loomctl", "sender name recorded on the injected message")
}

func runSendCommand(cmd *cobra.Command, args []string) {
	target := args[0]
	message := strings.Join(args[1:], " ")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := newAPIClient(serverAddr)
	resp, err := c.sendMessage(ctx, target, sendSender, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error sending message: %v\n", err)
		os.Exit(1)
	}
	if !resp.Delivered {
		fmt.Fprintf(os.Stderr, "Not delivered: %s\n", resp.Error)
		if len(resp.Available) > 0 {
			fmt.Fprintf(os.Stderr, "Available agents: %s\n", strings.Join(resp.Available, ", "))
			fmt.Fprintf(os.Stderr, "Create it first with: loomctl agents create %s\n", target)
		}
		os.Exit(1)
	}
	fmt.Printf("Delivered to %s\n", resp.Target)
}
