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

package supervisor

import "context"

// Retriever is the opaque retrieval function this package delegates to:
// retrieve(query, history, content) -> context_string. Its own failure is
// never fatal to a turn.
type Retriever interface {
	Retrieve(ctx context.Context, threadName, query string, budget int) (string, error)
}

// noRetriever always returns empty context, for hosts that don't wire a
// real retrieval backend.
type noRetriever struct{}

func (noRetriever) Retrieve(context.Context, string, string, int) (string, error) {
	return "", nil
}

// LinePostProcessor is the opaque per-line transform that runs between the
// subprocess and the decoder (e.g. externalizing large blocks into the
// content store). A processor that errors does not drop the line: the raw
// line is passed through unmodified.
type LinePostProcessor interface {
	Process(ctx context.Context, line []byte) ([]byte, error)
}

// identityPostProcessor is the default no-op processor.
type identityPostProcessor struct{}

func (identityPostProcessor) Process(_ context.Context, line []byte) ([]byte, error) {
	return line, nil
}
