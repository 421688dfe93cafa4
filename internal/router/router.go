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

// Package router treats every thread name as an addressable agent and
// delivers messages between agents by interjection: pre-empting a busy
// target's subprocess and re-injecting the message as a fresh user turn.
// Delivery is fire-and-forget and one-shot; there is no request/reply
// envelope or retry queue, since injection is pre-emptive by construction.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// Supervisor is the subset of *supervisor.Supervisor the router drives.
// Kept as a narrow interface so router tests don't need a real subprocess
// supervisor wired up.
type Supervisor interface {
	IsStreaming(threadName string) bool
	KillProcess(threadName string) error
	SendMessage(ctx context.Context, threadName, userText string, attachments []message.Attachment) error
}

// ThreadLister is the subset of *thread.Manager list_agents needs.
type ThreadLister interface {
	Names() []string
	Exists(name string) bool
}

// AgentStatus is one row of list_agents' result.
type AgentStatus struct {
	Name   string
	Status string // "streaming" or "idle"
}

const (
	statusStreaming = "streaming"
	statusIdle      = "idle"
)

// DefaultKillGracePeriod is how long InjectMessage waits after requesting
// a kill of the target's live subprocess before sending the injected turn.
const DefaultKillGracePeriod = 100 * time.Millisecond

// Config wires a Router's dependencies.
type Config struct {
	Supervisor      Supervisor
	Threads         ThreadLister
	Logger          *zap.Logger
	KillGracePeriod time.Duration // defaults to DefaultKillGracePeriod
}

// Router implements inject_message and list_agents against a Supervisor.
type Router struct {
	supervisor      Supervisor
	threads         ThreadLister
	logger          *zap.Logger
	killGracePeriod time.Duration
}

// New builds a Router. Supervisor and Threads are required; Logger and
// KillGracePeriod fall back to safe defaults.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := cfg.KillGracePeriod
	if grace <= 0 {
		grace = DefaultKillGracePeriod
	}
	return &Router{
		supervisor:      cfg.Supervisor,
		threads:         cfg.Threads,
		logger:          logger,
		killGracePeriod: grace,
	}
}

// injectedTemplate frames an agent-to-agent message as a user turn on the
// target, with sender attribution and reply instructions.
const injectedTemplate = `[From agent "%s"]:
%s

(Reply using send_to_agent("%s", your_response) to respond directly. Be concise and task-focused — no pleasantries or sign-offs.)`

func buildInjectedText(senderName, body string) string {
	return fmt.Sprintf(injectedTemplate, senderName, body, senderName)
}

// InjectMessage delivers body from senderName to targetThread: it kills any
// live subprocess on the target, waits a short grace period, then starts a
// fresh turn with the injected text. The target thread is created if it
// does not yet exist (the Supervisor's SendMessage does this implicitly).
//
// InjectMessage returns once the turn has been *started*, not once the
// target has finished responding: the turn itself runs in its own
// goroutine so the caller (typically a tool call from another agent's
// subprocess) is never blocked on the target's full reply.
func (r *Router) InjectMessage(ctx context.Context, targetThread, body, senderName string) error {
	if targetThread == senderName {
		return fmt.Errorf("agent %q cannot inject a message into itself", senderName)
	}

	if r.supervisor.IsStreaming(targetThread) {
		if err := r.supervisor.KillProcess(targetThread); err != nil {
			r.logger.Warn("inject_message: kill_process failed, proceeding anyway",
				zap.String("target", targetThread), zap.Error(err))
		}
		time.Sleep(r.killGracePeriod)
	}

	injected := buildInjectedText(senderName, body)

	go func() {
		// Detached from the caller's context: the injected turn must
		// outlive the tool call that triggered it.
		if err := r.supervisor.SendMessage(context.Background(), targetThread, injected, nil); err != nil {
			r.logger.Warn("inject_message: injected turn failed",
				zap.String("target", targetThread), zap.String("sender", senderName), zap.Error(err))
		}
	}()

	return nil
}

// ListAgents returns {name, status} for every thread name known to the
// Manager, status "streaming" iff a process is currently registered for
// that name.
func (r *Router) ListAgents() []AgentStatus {
	names := r.threads.Names()
	out := make([]AgentStatus, 0, len(names))
	for _, name := range names {
		status := statusIdle
		if r.supervisor.IsStreaming(name) {
			status = statusStreaming
		}
		out = append(out, AgentStatus{Name: name, Status: status})
	}
	return out
}

// TargetExists reports whether targetThread has ever been referenced, used
// by callers (the control API) that must distinguish "unknown agent" from
// "idle agent" instead of auto-creating on delivery.
func (r *Router) TargetExists(targetThread string) bool {
	return r.threads.Exists(targetThread)
}
