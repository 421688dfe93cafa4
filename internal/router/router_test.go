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

package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// fakeSupervisor is an in-memory stand-in for *supervisor.Supervisor.
type fakeSupervisor struct {
	mu         sync.Mutex
	streaming  map[string]bool
	killed     []string
	killErr    error
	sendErr    error
	sent       []sentCall
	sendSignal chan struct{} // optional: signaled after each SendMessage
}

type sentCall struct {
	thread string
	text   string
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{streaming: make(map[string]bool)}
}

func (f *fakeSupervisor) IsStreaming(threadName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streaming[threadName]
}

func (f *fakeSupervisor) KillProcess(threadName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, threadName)
	f.streaming[threadName] = false
	return f.killErr
}

func (f *fakeSupervisor) SendMessage(ctx context.Context, threadName, userText string, attachments []message.Attachment) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentCall{thread: threadName, text: userText})
	f.mu.Unlock()
	if f.sendSignal != nil {
		f.sendSignal <- struct{}{}
	}
	return f.sendErr
}

func (f *fakeSupervisor) setStreaming(name string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streaming[name] = v
}

func (f *fakeSupervisor) sentCalls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCall, len(f.sent))
	copy(out, f.sent)
	return out
}

// fakeThreadLister is an in-memory stand-in for *thread.Manager.
type fakeThreadLister struct {
	names []string
}

func (f *fakeThreadLister) Names() []string { return f.names }

func (f *fakeThreadLister) Exists(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func newTestRouter(t *testing.T, sup Supervisor, threads *fakeThreadLister) *Router {
	t.Helper()
	return New(Config{
		Supervisor:      sup,
		Threads:         threads,
		Logger:          zap.NewNop(),
		KillGracePeriod: time.Millisecond, // keep tests fast
	})
}

func TestInjectMessageRejectsSelfSend(t *testing.T) {
	sup := newFakeSupervisor()
	r := newTestRouter(t, sup, &fakeThreadLister{})

	err := r.InjectMessage(context.Background(), "weaver", "hi", "weaver")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot inject a message into itself")
	assert.Empty(t, sup.sentCalls())
}

func TestInjectMessageKillsLiveProcessBeforeSending(t *testing.T) {
	sup := newFakeSupervisor()
	sup.setStreaming("weaver", true)
	sup.sendSignal = make(chan struct{}, 1)
	r := newTestRouter(t, sup, &fakeThreadLister{})

	err := r.InjectMessage(context.Background(), "weaver", "please stop", "planner")
	require.NoError(t, err)

	select {
	case <-sup.sendSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for injected SendMessage")
	}

	sup.mu.Lock()
	killed := append([]string(nil), sup.killed...)
	sup.mu.Unlock()
	require.Equal(t, []string{"weaver"}, killed)

	calls := sup.sentCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "weaver", calls[0].thread)
	assert.Contains(t, calls[0].text, `[From agent "planner"]:`)
	assert.Contains(t, calls[0].text, "please stop")
	assert.Contains(t, calls[0].text, `send_to_agent("planner", your_response)`)
}

func TestInjectMessageSkipsKillWhenTargetIdle(t *testing.T) {
	sup := newFakeSupervisor()
	sup.sendSignal = make(chan struct{}, 1)
	r := newTestRouter(t, sup, &fakeThreadLister{})

	require.NoError(t, r.InjectMessage(context.Background(), "weaver", "hi", "planner"))

	select {
	case <-sup.sendSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for injected SendMessage")
	}

	assert.Empty(t, sup.killed)
}

func TestInjectMessageProceedsWhenKillProcessFails(t *testing.T) {
	sup := newFakeSupervisor()
	sup.setStreaming("weaver", true)
	sup.killErr = errors.New("process already exited")
	sup.sendSignal = make(chan struct{}, 1)
	r := newTestRouter(t, sup, &fakeThreadLister{})

	err := r.InjectMessage(context.Background(), "weaver", "hi", "planner")
	require.NoError(t, err, "a kill_process failure must not abort delivery")

	select {
	case <-sup.sendSignal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for injected SendMessage despite kill failure")
	}
}

func TestInjectMessageReturnsWithoutWaitingForTheTurnToFinish(t *testing.T) {
	sup := newFakeSupervisor()
	block := make(chan struct{})
	sup.sendSignal = nil
	// Wrap SendMessage via a custom fake that blocks until released, to prove
	// InjectMessage does not wait on it.
	blocking := &blockingSupervisor{fakeSupervisor: sup, release: block}
	r := newTestRouter(t, blocking, &fakeThreadLister{})

	done := make(chan struct{})
	go func() {
		err := r.InjectMessage(context.Background(), "weaver", "hi", "planner")
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("InjectMessage blocked on the injected turn instead of returning immediately")
	}
	close(block)
}

// blockingSupervisor wraps fakeSupervisor's SendMessage to block until
// release is closed, without holding fakeSupervisor's mutex while blocked.
type blockingSupervisor struct {
	*fakeSupervisor
	release chan struct{}
}

func (b *blockingSupervisor) SendMessage(ctx context.Context, threadName, userText string, attachments []message.Attachment) error {
	<-b.release
	return b.fakeSupervisor.SendMessage(ctx, threadName, userText, attachments)
}

func TestListAgentsReportsStreamingAndIdleStatus(t *testing.T) {
	sup := newFakeSupervisor()
	sup.setStreaming("weaver", true)
	threads := &fakeThreadLister{names: []string{"weaver", "planner", "scout"}}
	r := newTestRouter(t, sup, threads)

	agents := r.ListAgents()
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	require.Len(t, agents, 3)
	assert.Equal(t, AgentStatus{Name: "planner", Status: statusIdle}, agents[0])
	assert.Equal(t, AgentStatus{Name: "scout", Status: statusIdle}, agents[1])
	assert.Equal(t, AgentStatus{Name: "weaver", Status: statusStreaming}, agents[2])
}

func TestListAgentsOnEmptyManagerReturnsEmptySlice(t *testing.T) {
	sup := newFakeSupervisor()
	r := newTestRouter(t, sup, &fakeThreadLister{})
	assert.Empty(t, r.ListAgents())
}

func TestTargetExistsReflectsThreadLister(t *testing.T) {
	sup := newFakeSupervisor()
	threads := &fakeThreadLister{names: []string{"weaver"}}
	r := newTestRouter(t, sup, threads)

	assert.True(t, r.TargetExists("weaver"))
	assert.False(t, r.TargetExists("ghost"))
}
