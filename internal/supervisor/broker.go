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

import "sync"

// eventBroker fans TurnEvents out to N subscribers per thread, keyed by
// thread name.
//
// Subscribers are expected to be bounded UI consumers: each subscriber
// channel is buffered, and an event published while a subscriber's buffer
// is full is dropped for that subscriber rather than blocking the supervisor.
type eventBroker struct {
	mu   sync.Mutex
	subs map[string][]chan TurnEvent
}

func newEventBroker() *eventBroker {
	return &eventBroker{subs: make(map[string][]chan TurnEvent)}
}

const subscriberBufferSize = 64

// Subscribe returns a channel of events for threadName and an unsubscribe
// function the caller must call when done listening.
func (b *eventBroker) Subscribe(threadName string) (<-chan TurnEvent, func()) {
	ch := make(chan TurnEvent, subscriberBufferSize)

	b.mu.Lock()
	b.subs[threadName] = append(b.subs[threadName], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[threadName]
		for i, c := range chans {
			if c == ch {
				b.subs[threadName] = append(chans[:i], chans[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, unsubscribe
}

// publish delivers ev to every current subscriber of threadName. A full
// subscriber buffer drops the event for that subscriber rather than
// blocking the turn. Sending under the lock keeps publish from racing an
// unsubscribe's close of the same channel; the sends never block, so the
// critical section stays short.
func (b *eventBroker) publish(threadName string, ev TurnEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[threadName] {
		select {
		case ch <- ev:
		default:
		}
	}
}
