// Copyright 2025 The Weft Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package live fans ingested spans out to subscribers. Delivery is
// at-least-effort: each subscriber owns a bounded queue and a delivery
// goroutine, and when the queue fills the oldest buffered span is dropped
// for that subscriber only. Publishing never waits on a consumer, so a
// stalled dashboard cannot slow ingestion down.
package live

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wefthq/weft/pkg/telemetry"
)

// DefaultBuffer is the per-subscriber queue depth when none is configured.
const DefaultBuffer = 64

// Config contains broadcaster settings.
type Config struct {
	// Buffer is the per-subscriber queue depth.
	Buffer int
}

// Broadcaster distributes published spans to all current subscribers.
type Broadcaster struct {
	buffer int
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	dropped atomic.Int64
}

// New creates a Broadcaster.
func New(cfg Config, logger *slog.Logger) *Broadcaster {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Broadcaster{
		buffer:      cfg.Buffer,
		logger:      logger,
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a new subscriber and returns its ID, the span
// channel, and an unsubscribe function. The channel is closed after
// unsubscribe (or broadcaster shutdown); the unsubscribe function is
// idempotent.
func (b *Broadcaster) Subscribe() (string, <-chan *telemetry.Span, func()) {
	sub := &subscriber{
		id:     uuid.NewString(),
		out:    make(chan *telemetry.Span),
		queue:  newRing(b.buffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.out)
		return sub.id, sub.out, func() {}
	}
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	go sub.run()

	unsubscribe := func() { b.remove(sub) }
	return sub.id, sub.out, unsubscribe
}

// Publish hands a span to every subscriber queue. It never blocks on a
// consumer: full queues drop their oldest entry instead.
func (b *Broadcaster) Publish(span *telemetry.Span) {
	// One copy shared by all subscribers; they treat it as read-only.
	span = span.Clone()

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		if sub.push(span) {
			b.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns the total number of spans dropped across all
// subscribers since the broadcaster started.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts down every subscriber. Publish becomes a no-op and
// Subscribe returns an already-closed channel afterwards.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Broadcaster) remove(sub *subscriber) {
	b.mu.Lock()
	_, present := b.subscribers[sub.id]
	delete(b.subscribers, sub.id)
	b.mu.Unlock()

	if present {
		if n := sub.droppedCount.Load(); n > 0 {
			b.logger.Debug("live subscriber left",
				"subscriber_id", sub.id,
				"dropped", n,
			)
		}
		sub.stop()
	}
}

// subscriber is one live feed consumer: a bounded queue filled by Publish
// and drained by its own delivery goroutine.
type subscriber struct {
	id  string
	out chan *telemetry.Span

	mu    sync.Mutex
	queue *ring

	notify chan struct{}
	done   chan struct{}

	stopOnce     sync.Once
	droppedCount atomic.Int64
}

// push enqueues a span, dropping the oldest buffered one when full.
// Reports whether a drop happened.
func (s *subscriber) push(span *telemetry.Span) bool {
	s.mu.Lock()
	dropped := s.queue.push(span)
	s.mu.Unlock()

	if dropped {
		s.droppedCount.Add(1)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// run is the delivery loop. Pulling from the queue and handing to the
// consumer are separate steps, so a slow consumer blocks only this
// goroutine while the queue keeps absorbing (and aging out) spans.
func (s *subscriber) run() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			span, ok := s.queue.pop()
			s.mu.Unlock()
			if !ok {
				break
			}

			select {
			case s.out <- span:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// ring is a fixed-capacity FIFO of spans.
type ring struct {
	buf  []*telemetry.Span
	head int
	n    int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]*telemetry.Span, capacity)}
}

// push appends a span, evicting the oldest entry when full. Reports
// whether an eviction happened.
func (r *ring) push(span *telemetry.Span) bool {
	evicted := false
	if r.n == len(r.buf) {
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
		r.n--
		evicted = true
	}
	r.buf[(r.head+r.n)%len(r.buf)] = span
	r.n++
	return evicted
}

// pop removes and returns the oldest span.
func (r *ring) pop() (*telemetry.Span, bool) {
	if r.n == 0 {
		return nil, false
	}
	span := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return span, true
}
