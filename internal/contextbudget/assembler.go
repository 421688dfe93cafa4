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

package contextbudget

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/loom-agentd/internal/message"
)

// Budget constants, fixed at build.
const (
	RecentContextCount  = 10
	RecentMsgMaxTokens  = 500
	TotalContextBudget  = 120_000
	RecentContextBudget = 6_000

	// externalizeTokenThreshold is one half of the externalization rule:
	// user input goes to the content store instead of inline when its
	// estimated tokens exceed this threshold and also exceed a quarter of
	// the budget left after prior conversation tokens, the always-include
	// block and the input itself.
	externalizeTokenThreshold = 4_000
)

// Stats mirrors the "conversation stats" input: prior message count and
// prior token total.
type Stats struct {
	MessageCount int
	TotalTokens  int
}

// AlwaysInclude is the always-include block and its precomputed token cost.
type AlwaysInclude struct {
	Text   string
	Tokens int
}

// ContentWriter is the subset of the content store the assembler needs to
// externalize oversized user input.
type ContentWriter interface {
	Put(blob []byte) (id string, err error)
}

// Assembler builds the per-turn system prompt and decides what gets
// externalized. A single Assembler is stateless and safe for concurrent use
// across threads; only the TokenCounter it wraps carries a mutex.
type Assembler struct {
	counter *TokenCounter
	store   ContentWriter
}

// New returns an Assembler backed by counter (Default() if nil) and store,
// used only when user input must be externalized.
func New(counter *TokenCounter, store ContentWriter) *Assembler {
	if counter == nil {
		counter = Default()
	}
	return &Assembler{counter: counter, store: store}
}

// RAGBudget computes the retrieval budget: what's left of the total budget
// after the user query, the always-include block, and the reserved
// recent-context allotment.
func RAGBudget(userQueryTokens, alwaysIncludeTokens int) int {
	budget := TotalContextBudget - userQueryTokens - alwaysIncludeTokens - RecentContextBudget
	if budget < 0 {
		return 0
	}
	return budget
}

// Input collects everything the assembler needs for one turn. RetrievedContext
// is the string the supervisor already obtained from the opaque retriever,
// using a budget computed by RAGBudget.
type Input struct {
	Stats            Stats
	SessionID        string
	RecentMessages   []message.Message // latest-last
	UserQuery        string
	RetrievedContext string
	AlwaysInclude    AlwaysInclude
}

// Result is the assembler's output: the final system prompt and the
// possibly-rewritten user input text (a [STORED:<id>] sentinel when
// externalized).
type Result struct {
	SystemPrompt  string
	RewrittenUser string
	Externalized  bool
}

// Assemble builds the per-turn system prompt and (possibly-rewritten) user
// input under the fixed token budget.
func (a *Assembler) Assemble(in Input) (Result, error) {
	recentBlock := a.formatRecentBlock(in.RecentMessages)

	userQueryTokens := a.counter.Estimate(in.UserQuery)
	budgetRemaining := TotalContextBudget - in.Stats.TotalTokens - in.AlwaysInclude.Tokens - userQueryTokens

	rewritten := in.UserQuery
	externalized := false
	if a.shouldExternalize(in.UserQuery, budgetRemaining) {
		id, err := a.store.Put([]byte(in.UserQuery))
		if err != nil {
			return Result{}, fmt.Errorf("externalize user input: %w", err)
		}
		rewritten = fmt.Sprintf("[STORED:%s]", id)
		externalized = true
	}

	prompt := fillTemplate(in.Stats, in.SessionID, in.AlwaysInclude.Text, recentBlock, in.RetrievedContext)

	return Result{SystemPrompt: prompt, RewrittenUser: rewritten, Externalized: externalized}, nil
}

// shouldExternalize is the externalization policy predicate; see
// externalizeTokenThreshold's doc comment for the resolution taken here.
func (a *Assembler) shouldExternalize(text string, budgetRemaining int) bool {
	if a.store == nil {
		return false
	}
	tokens := a.counter.Estimate(text)
	return tokens > externalizeTokenThreshold && tokens > budgetRemaining/4
}

// formatRecentBlock walks newest-to-oldest, truncates each message, prepends
// until the remaining recent budget would be exceeded, stops at the first
// over-budget message (never skips ahead to fit a smaller later one), and
// emits oldest-first.
func (a *Assembler) formatRecentBlock(recent []message.Message) string {
	remaining := RecentContextBudget
	var lines []string // built newest-to-oldest, reversed before return

	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		truncated := truncateToTokens(msg.Content, RecentMsgMaxTokens)
		cost := a.counter.Estimate(truncated)
		if cost > remaining {
			break
		}
		remaining -= cost
		lines = append(lines, fmt.Sprintf("[%s] %s", msg.Role, truncated))
	}

	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n\n")
}

// truncateToTokens enforces a character budget ≈ tokens × 3 approximation,
// appending the terminal truncation marker.
func truncateToTokens(content string, maxTokens int) string {
	charBudget := maxTokens * 3
	runes := []rune(content)
	if len(runes) <= charBudget {
		return content
	}
	return string(runes[:charBudget]) + "... [truncated]"
}

const fallbackToolsInstruction = `If the recent-conversation and retrieved-context blocks above don't contain
what you need, you have tools available to search further back in this
thread's history and content store directly. Prefer those tools over asking
the user to repeat themselves.`

func fillTemplate(stats Stats, sessionID, alwaysInclude, recentBlock, retrieved string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation so far: %d prior messages, ~%d tokens.\n", stats.MessageCount, stats.TotalTokens)
	fmt.Fprintf(&b, "Session: %s\n\n", sessionID)
	if alwaysInclude != "" {
		b.WriteString("## Always-include context\n")
		b.WriteString(alwaysInclude)
		b.WriteString("\n\n")
	}
	if recentBlock != "" {
		b.WriteString("## Recent conversation\n")
		b.WriteString(recentBlock)
		b.WriteString("\n\n")
	}
	if retrieved != "" {
		b.WriteString("## Retrieved context\n")
		b.WriteString(retrieved)
		b.WriteString("\n\n")
	}
	b.WriteString(fallbackToolsInstruction)
	return b.String()
}
