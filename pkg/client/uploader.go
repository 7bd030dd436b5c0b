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

package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wefthq/weft/pkg/telemetry"
)

// Uploader defaults.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 5 * time.Second
)

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	// BatchSize is the number of buffered spans that triggers a flush,
	// and the chunk size of each upload request.
	BatchSize int

	// FlushInterval bounds how long a partial batch waits.
	FlushInterval time.Duration

	// Logger receives upload failure warnings. Discarded when nil.
	Logger *slog.Logger
}

// Uploader buffers spans and ships them to the daemon in batches.
// Telemetry must never take a workflow down with it: Record cannot
// block or fail, and upload errors drop the batch with a warning
// instead of propagating to the producer.
type Uploader struct {
	client    *Client
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	mu  sync.Mutex
	buf []*telemetry.Span

	notify   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	dropped atomic.Int64
}

// NewUploader creates an Uploader and starts its background flush loop.
func NewUploader(c *Client, opts UploaderOptions) *Uploader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	u := &Uploader{
		client:    c,
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		logger:    logger,
		notify:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go u.loop()
	return u
}

// Record buffers a span for upload. It never blocks; a full buffer
// flushes in the background.
func (u *Uploader) Record(span *telemetry.Span) {
	if span == nil {
		return
	}
	u.mu.Lock()
	u.buf = append(u.buf, span)
	full := len(u.buf) >= u.batchSize
	u.mu.Unlock()

	if full {
		select {
		case u.notify <- struct{}{}:
		default:
		}
	}
}

// Flush synchronously uploads everything currently buffered.
func (u *Uploader) Flush(ctx context.Context) error {
	return u.upload(ctx, u.take())
}

// Close stops the background loop and flushes the remaining spans.
func (u *Uploader) Close(ctx context.Context) error {
	u.stopOnce.Do(func() {
		close(u.stopCh)
	})
	<-u.doneCh
	return u.Flush(ctx)
}

// Dropped returns how many spans failed to upload and were discarded.
func (u *Uploader) Dropped() int64 {
	return u.dropped.Load()
}

func (u *Uploader) take() []*telemetry.Span {
	u.mu.Lock()
	defer u.mu.Unlock()
	batch := u.buf
	u.buf = nil
	return batch
}

// upload ships the batch in chunks of at most batchSize so a backlog
// never exceeds the daemon's batch limit. Failed chunks are dropped.
func (u *Uploader) upload(ctx context.Context, batch []*telemetry.Span) error {
	var firstErr error
	for start := 0; start < len(batch); start += u.batchSize {
		end := min(start+u.batchSize, len(batch))
		chunk := batch[start:end]

		result, err := u.client.IngestBatch(ctx, chunk)
		if err != nil {
			u.dropped.Add(int64(len(chunk)))
			u.logger.Warn("span upload failed",
				slog.Int("spans", len(chunk)),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if result.Rejected > 0 {
			u.dropped.Add(int64(result.Rejected))
			u.logger.Warn("spans rejected by daemon",
				slog.Int("rejected", result.Rejected),
			)
		}
	}
	return firstErr
}

func (u *Uploader) loop() {
	defer close(u.doneCh)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-u.stopCh:
			return
		case <-u.notify:
		case <-ticker.C:
		}
		// Background flushes swallow errors; producers must not stall
		// on a dead daemon.
		u.upload(context.Background(), u.take())
	}
}
