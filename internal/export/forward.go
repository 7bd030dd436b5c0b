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

package export

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/wefthq/weft/pkg/telemetry"
)

// Forwarder defaults.
const (
	DefaultBuffer  = 512
	DefaultTimeout = 10 * time.Second
)

// ForwarderConfig tunes the forwarding queue.
type ForwarderConfig struct {
	// Buffer is the queue depth. When full, the oldest queued span is
	// dropped so the newest telemetry survives.
	Buffer int

	// Timeout bounds each export call.
	Timeout time.Duration
}

// Forwarder drains a bounded queue of ingested spans into a span
// exporter. Enqueue never blocks; export failures are logged and the
// batch is dropped rather than retried, since the collector gets the
// next upsert anyway.
type Forwarder struct {
	exporter sdktrace.SpanExporter
	buffer   int
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending []*telemetry.Span

	notify    chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	dropped   atomic.Int64
}

// NewForwarder creates a Forwarder around the exporter. Call Start to
// begin draining.
func NewForwarder(exporter sdktrace.SpanExporter, cfg ForwarderConfig, logger *slog.Logger) *Forwarder {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Forwarder{
		exporter: exporter,
		buffer:   cfg.Buffer,
		timeout:  cfg.Timeout,
		logger:   logger,
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the drain loop.
func (f *Forwarder) Start() {
	f.startOnce.Do(func() {
		f.started.Store(true)
		go f.run()
	})
}

// Enqueue queues a span for forwarding. When the queue is full the
// oldest span is evicted and counted as dropped.
func (f *Forwarder) Enqueue(span *telemetry.Span) {
	select {
	case <-f.stopCh:
		return
	default:
	}

	f.mu.Lock()
	if len(f.pending) >= f.buffer {
		copy(f.pending, f.pending[1:])
		f.pending = f.pending[:len(f.pending)-1]
		f.dropped.Add(1)
	}
	f.pending = append(f.pending, span)
	f.mu.Unlock()

	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Dropped returns the number of spans evicted from the queue so far.
func (f *Forwarder) Dropped() int64 {
	return f.dropped.Load()
}

// Stop drains whatever is queued, stops the loop, and shuts the exporter
// down.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })

	if f.started.Load() {
		select {
		case <-f.doneCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.exporter.Shutdown(ctx)
}

func (f *Forwarder) run() {
	defer close(f.doneCh)
	for {
		select {
		case <-f.stopCh:
			// Final drain so Stop does not lose queued spans.
			f.export()
			return
		case <-f.notify:
			f.export()
		}
	}
}

// export swaps out the pending queue and pushes it to the exporter.
func (f *Forwarder) export() {
	f.mu.Lock()
	batch := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.exporter.ExportSpans(ctx, snapshots(batch)); err != nil {
		f.logger.Warn("span forwarding failed",
			slog.Int("batch_size", len(batch)),
			slog.Any("error", err),
		)
	}
}
