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

// Package contextbudget builds the per-turn system prompt and decides what
// gets externalized, under the fixed token budget the supervisor enforces.
package contextbudget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts with the cl100k_base encoding, a
// close-enough approximation for budgeting against Claude-family models.
// One counter is shared process-wide: tokenizer initialization is expensive
// and the encoder itself holds no per-call state, so a singleton is
// appropriate even though the rest of this package threads all other
// dependencies explicitly.
type TokenCounter struct {
	mu      sync.Mutex
	encoder *tiktoken.Tiktoken
}

var (
	globalCounter     *TokenCounter
	globalCounterOnce sync.Once
)

// Default returns the process-wide TokenCounter, initializing it on first
// use.
func Default() *TokenCounter {
	globalCounterOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			globalCounter = &TokenCounter{}
			return
		}
		globalCounter = &TokenCounter{encoder: enc}
	})
	return globalCounter
}

// Estimate returns the estimated token count for text, falling back to a
// char/4 approximation if the encoder failed to initialize.
func (tc *TokenCounter) Estimate(text string) int {
	if tc.encoder == nil {
		return len(text) / 4
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.encoder.Encode(text, nil, nil))
}
