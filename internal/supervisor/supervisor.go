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

// Package supervisor executes one LLM turn for one thread: prepares
// context, spawns the external CLI, routes its output to subscribers, and
// reconciles final state into the thread's history log.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/loom-agentd/internal/contextbudget"
	"github.com/teradata-labs/loom-agentd/internal/message"
	"github.com/teradata-labs/loom-agentd/internal/segment"
	"github.com/teradata-labs/loom-agentd/internal/streamdecoder"
	"github.com/teradata-labs/loom-agentd/internal/thread"
)

// AlwaysIncludeProvider supplies the always-include context block for a
// thread (e.g. project instructions). The default provider supplies none.
type AlwaysIncludeProvider interface {
	AlwaysInclude(threadName string) (contextbudget.AlwaysInclude, error)
}

type emptyAlwaysInclude struct{}

func (emptyAlwaysInclude) AlwaysInclude(string) (contextbudget.AlwaysInclude, error) {
	return contextbudget.AlwaysInclude{}, nil
}

// Config wires every collaborator a Supervisor needs. Zero-value fields
// fall back to inert defaults (no-op retriever/post-processor/git restorer,
// empty always-include) so a minimal Supervisor can be built for tests.
type Config struct {
	Threads       *thread.Manager
	Assembler     *contextbudget.Assembler
	Counter       *contextbudget.TokenCounter
	Retriever     Retriever
	PostProcessor LinePostProcessor
	GitRestorer   GitRestorer
	AlwaysInclude AlwaysIncludeProvider
	CLI           CLIConfig
	Logger        *zap.Logger

	// ControlAPIBaseURL and tool server paths are threaded into every
	// generated tool-config file.
	ControlAPIBaseURL    string
	HelperToolServerPath string
	AgentToolServerPath  string
}

// Supervisor is the subprocess supervisor for every thread in one host
// process. One Supervisor is shared by all threads; per-thread state lives
// in the active-process map and is guarded by mu.
type Supervisor struct {
	threads       *thread.Manager
	assembler     *contextbudget.Assembler
	counter       *contextbudget.TokenCounter
	retriever     Retriever
	postProcessor LinePostProcessor
	gitRestorer   GitRestorer
	alwaysInclude AlwaysIncludeProvider
	cli           CLIConfig
	logger        *zap.Logger

	controlAPIBaseURL    string
	helperToolServerPath string
	agentToolServerPath  string

	broker *eventBroker

	mu     sync.Mutex
	active map[string]*turnProcess // thread name -> live subprocess
}

// New returns a Supervisor. cfg.Threads must be non-nil.
func New(cfg Config) *Supervisor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retriever == nil {
		cfg.Retriever = noRetriever{}
	}
	if cfg.PostProcessor == nil {
		cfg.PostProcessor = identityPostProcessor{}
	}
	if cfg.GitRestorer == nil {
		cfg.GitRestorer = noGitRestorer{}
	}
	if cfg.AlwaysInclude == nil {
		cfg.AlwaysInclude = emptyAlwaysInclude{}
	}
	if cfg.Counter == nil {
		cfg.Counter = contextbudget.Default()
	}
	return &Supervisor{
		threads:              cfg.Threads,
		assembler:            cfg.Assembler,
		counter:              cfg.Counter,
		retriever:            cfg.Retriever,
		postProcessor:        cfg.PostProcessor,
		gitRestorer:          cfg.GitRestorer,
		alwaysInclude:        cfg.AlwaysInclude,
		cli:                  cfg.CLI,
		logger:               cfg.Logger,
		controlAPIBaseURL:    cfg.ControlAPIBaseURL,
		helperToolServerPath: cfg.HelperToolServerPath,
		agentToolServerPath:  cfg.AgentToolServerPath,
		broker:               newEventBroker(),
		active:               make(map[string]*turnProcess),
	}
}

// Subscribe registers a listener for threadName's events. Callers must
// invoke the returned unsubscribe function when done.
func (s *Supervisor) Subscribe(threadName string) (<-chan TurnEvent, func()) {
	return s.broker.Subscribe(threadName)
}

// IsStreaming reports whether threadName currently has a live subprocess
// registered.
func (s *Supervisor) IsStreaming(threadName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[threadName]
	return ok
}

// KillProcess terminates the active process for threadName, if any. Safe
// to call when no process is active.
func (s *Supervisor) KillProcess(threadName string) error {
	s.mu.Lock()
	tp, ok := s.active[threadName]
	delete(s.active, threadName)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	tp.kill()
	return nil
}

// HistoryEntry is GetHistory's result shape: attachments carry an absolute
// path rather than storedPath.
type HistoryEntry struct {
	ID          string
	Role        message.Role
	Content     string
	TimestampMS int64
	TokenCount  *int
	Metadata    map[string]string
	Attachments []HistoryAttachment
}

type HistoryAttachment struct {
	Name     string
	Path     string
	Kind     message.AttachmentKind
	MimeType string
}

// GetHistory returns threadName's messages: count <= 0 returns all,
// otherwise the most recent count.
func (s *Supervisor) GetHistory(threadName string, count int) ([]HistoryEntry, error) {
	th, err := s.threads.GetOrCreate(threadName)
	if err != nil {
		return nil, err
	}

	var msgs []message.Message
	if count <= 0 {
		msgs, err = th.History.GetAll()
	} else {
		msgs, err = th.History.GetRecent(count)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = HistoryEntry{
			ID: m.ID, Role: m.Role, Content: m.Content,
			TimestampMS: m.TimestampMS, TokenCount: m.TokenCount, Metadata: m.Metadata,
		}
		for _, a := range m.Attachments {
			entries[i].Attachments = append(entries[i].Attachments, HistoryAttachment{
				Name: a.Name, Path: th.ResolveAttachmentPath(a), Kind: a.Kind, MimeType: a.MimeType,
			})
		}
	}
	return entries, nil
}

// SendMessage runs one LLM turn for threadName end to end: resolve
// the thread, append the user message, assemble context, spawn the CLI,
// stream its output to subscribers, and finalize. It blocks for the
// duration of the turn; callers wanting fire-and-forget semantics (as the
// router does for injected messages) invoke it in their own goroutine.
func (s *Supervisor) SendMessage(ctx context.Context, threadName, userText string, attachments []message.Attachment) error {
	th, err := s.threads.GetOrCreate(threadName)
	if err != nil {
		return fmt.Errorf("resolve thread %q: %w", threadName, err)
	}

	imageBlocks, unreadable := buildImageBlocks(th, attachments)
	finalUserText := appendFileReferences(userText, th, attachments, unreadable)

	userMsg := message.Message{
		Role:        message.User,
		Content:     finalUserText,
		TimestampMS: nowMillis(),
		Attachments: attachments,
	}
	userMsg, err = th.History.Append(userMsg)
	if err != nil {
		return fmt.Errorf("append user message: %w", err)
	}

	resolved := userMsg
	resolved.Attachments = make([]message.Attachment, len(userMsg.Attachments))
	for i, a := range userMsg.Attachments {
		resolved.Attachments[i] = a
		resolved.Attachments[i].Path = th.ResolveAttachmentPath(a)
	}
	s.broker.publish(threadName, UserMessageAppendedEvent{Message: resolved})

	assembled, sessionID, err := s.assembleContext(ctx, th, threadName, finalUserText)
	if err != nil {
		return fmt.Errorf("assemble context: %w", err)
	}

	program, err := resolveProgramPath(s.cli)
	if err != nil {
		wrapped := fatalStartupError(s.cli.binaryName(), err)
		s.broker.publish(threadName, StreamErrorEvent{Err: wrapped.Error()})
		s.broker.publish(threadName, StreamEndEvent{Message: nil, FallbackText: "", Segments: nil})
		return wrapped
	}

	toolConfigPath, err := th.ToolConfigPath(thread.ToolConfigOptions{
		HelperToolServerPath: s.helperToolServerPath,
		AgentToolServerPath:  s.agentToolServerPath,
		ControlAPIBaseURL:    s.controlAPIBaseURL,
		AgentName:            threadName,
	})
	if err != nil {
		return fmt.Errorf("tool config: %w", err)
	}

	hasImages := len(imageBlocks) > 0
	args := buildArgs(toolConfigPath, assembled.SystemPrompt, assembled.RewrittenUser, hasImages)

	tp, spawnErr := spawnTurnProcess(program, args, filteredEnviron(), th.Home, hasImages, s.logger, func(chunk string) {
		s.broker.publish(threadName, StreamErrorEvent{Err: chunk})
	})
	if spawnErr != nil {
		wrapped := fatalStartupError(s.cli.binaryName(), spawnErr)
		s.broker.publish(threadName, StreamErrorEvent{Err: wrapped.Error()})
		s.broker.publish(threadName, StreamEndEvent{Message: nil, FallbackText: "", Segments: nil})
		return wrapped
	}

	s.mu.Lock()
	s.active[threadName] = tp
	s.mu.Unlock()

	// Without images no stdin pipe exists at all: the child's stdin is the
	// null device. With images, exactly one JSON line is written and the
	// pipe closed; if the payload fails to encode, the opened pipe is closed
	// unwritten so the child still observes EOF.
	if hasImages {
		payload, err := encodeStdinPayload(imageBlocks, assembled.RewrittenUser)
		if err != nil {
			s.logger.Warn("encode stdin payload failed, closing stdin unwritten", zap.String("thread", threadName), zap.Error(err))
			tp.closeStdin()
		} else if err := tp.writeStdinLine(payload); err != nil {
			s.logger.Warn("write stdin failed", zap.String("thread", threadName), zap.Error(err))
		}
	}

	accumulated, allSegments := s.driveDecoderLoop(ctx, threadName, tp)

	s.mu.Lock()
	if s.active[threadName] == tp {
		delete(s.active, threadName)
	}
	s.mu.Unlock()
	tp.wait()

	s.finalize(th, threadName, sessionID, accumulated, allSegments, tp.wasKilled())
	return nil
}

// assembleContext gathers stats, recent messages, the session id, the
// always-include block, and retrieved context, then invokes the assembler.
func (s *Supervisor) assembleContext(ctx context.Context, th *thread.Thread, threadName, userText string) (contextbudget.Result, string, error) {
	stats, err := th.History.GetStats()
	if err != nil {
		return contextbudget.Result{}, "", fmt.Errorf("history stats: %w", err)
	}
	recent, err := th.History.GetRecent(contextbudget.RecentContextCount)
	if err != nil {
		return contextbudget.Result{}, "", fmt.Errorf("recent history: %w", err)
	}
	sessionID, err := th.SessionID()
	if err != nil {
		return contextbudget.Result{}, "", fmt.Errorf("session id: %w", err)
	}
	always, err := s.alwaysInclude.AlwaysInclude(threadName)
	if err != nil {
		s.logger.Warn("always-include provider failed", zap.String("thread", threadName), zap.Error(err))
		always = contextbudget.AlwaysInclude{}
	}

	userQueryTokens := s.counter.Estimate(userText)
	ragBudget := contextbudget.RAGBudget(userQueryTokens, always.Tokens)

	retrieved, err := s.retriever.Retrieve(ctx, threadName, userText, ragBudget)
	if err != nil {
		// Retrieval failure is logged and treated as empty context; never fatal.
		s.logger.Warn("retrieval failed", zap.String("thread", threadName), zap.Error(err))
		retrieved = ""
	}

	result, err := s.assembler.Assemble(contextbudget.Input{
		Stats:            contextbudget.Stats{MessageCount: stats.Count, TotalTokens: stats.TotalTokens},
		SessionID:        sessionID,
		RecentMessages:   recent,
		UserQuery:        userText,
		RetrievedContext: retrieved,
		AlwaysInclude:    always,
	})
	return result, sessionID, err
}

// driveDecoderLoop reads stdout, runs the post-processor and decoder per
// line, fans segments out to subscribers, and awaits every per-line task
// before returning. Post-processing for each line runs as its own errgroup
// goroutine, but publication is serialized behind a turnstile so
// stream-chunk/stream-segment delivery still observes decoder output order
// regardless of how the post-processor goroutines finish.
func (s *Supervisor) driveDecoderLoop(ctx context.Context, threadName string, tp *turnProcess) (string, []segment.Segment) {
	dec := streamdecoder.New()

	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	nextSeq := 0
	var accumulated strings.Builder
	var allSegments []segment.Segment
	var g errgroup.Group

	process := func(seq int, line []byte) {
		processed, perr := s.postProcessor.Process(ctx, line)
		if perr != nil {
			s.logger.Warn("post-processor failed, passing raw line through", zap.Error(perr))
			processed = line
		}
		segs := streamdecoder.DecodeLine(processed)

		mu.Lock()
		defer mu.Unlock()
		for nextSeq != seq {
			cond.Wait()
		}
		for _, seg := range segs {
			allSegments = append(allSegments, seg)
			if text, ok := seg.(segment.Text); ok {
				prefixed := text.Content
				if accumulated.Len() > 0 && !strings.HasSuffix(accumulated.String(), "\n") {
					prefixed = "\n\n" + prefixed
				}
				accumulated.WriteString(prefixed)
				s.broker.publish(threadName, StreamChunkEvent{Text: prefixed})
			}
			s.broker.publish(threadName, StreamSegmentEvent{Segment: seg})
		}
		nextSeq++
		cond.Broadcast()
	}

	buf := make([]byte, 32*1024)
	seq := 0
	for {
		n, rerr := tp.stdout.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			for _, line := range dec.FeedLines(chunk) {
				line, thisSeq := line, seq
				seq++
				g.Go(func() error { process(thisSeq, line); return nil })
			}
		}
		if rerr != nil {
			break
		}
	}
	if tail, ok := dec.FlushLine(); ok {
		thisSeq := seq
		seq++
		g.Go(func() error { process(thisSeq, tail); return nil })
	}
	g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return accumulated.String(), allSegments
}

// finalize runs the turn's completion step. Idempotent by
// construction: SendMessage calls it exactly once per invocation, and the
// active-process deregistration already happened before this runs.
//
// A pre-empted turn never appends its partial text to history: the
// accumulator is surfaced as fallback text only, and the injected user turn
// that caused the pre-emption supersedes it.
func (s *Supervisor) finalize(th *thread.Thread, threadName, sessionID, accumulated string, segments []segment.Segment, preempted bool) {
	if accumulated == "" || preempted {
		fallback := ""
		if preempted {
			fallback = accumulated
		}
		s.broker.publish(threadName, StreamEndEvent{Message: nil, FallbackText: fallback, Segments: segments})
		return
	}

	assistantMsg := message.Message{
		Role:        message.Assistant,
		Content:     accumulated,
		TimestampMS: nowMillis(),
		Metadata:    map[string]string{"sessionId": sessionID},
	}
	stored, err := th.History.Append(assistantMsg)
	if err != nil {
		s.logger.Error("history append failed in finalizer", zap.String("thread", threadName), zap.Error(err))
		s.broker.publish(threadName, StreamEndEvent{Message: nil, FallbackText: accumulated, Segments: segments})
		return
	}

	// Best-effort session touch: in this design the session object is just
	// the stable id th.SessionID() already established, so there is nothing
	// further to persist here. Re-fetching it still exercises the same
	// failure-is-logged-not-propagated contract the finalizer promises.
	if _, serr := th.SessionID(); serr != nil {
		s.logger.Warn("session update failed", zap.String("thread", threadName), zap.Error(serr))
	}

	s.broker.publish(threadName, StreamEndEvent{Message: &stored, FallbackText: accumulated, Segments: segments})
}

// nowMillis is isolated in its own function so callers needing a
// deterministic clock in tests can shadow it; production code always
// wants wall-clock time here.
var nowMillis = func() int64 { return time.Now().UnixMilli() }
